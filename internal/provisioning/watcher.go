// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package provisioning

import (
	"context"
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"

	"github.com/mystira/devhub/pkg/infra"
)

// TemplateWatcher resets the readiness session whenever a deployment
// template changes on disk. A diff computed against stale templates must
// never gate a deploy.
type TemplateWatcher struct {
	dir     string
	session *infra.Session
}

// NewTemplateWatcher watches the deployment template directory.
func NewTemplateWatcher(dir string, session *infra.Session) *TemplateWatcher {
	return &TemplateWatcher{dir: dir, session: session}
}

// Run watches until the context is cancelled.
func (w *TemplateWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed creating template watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed watching %s: %w", w.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				log.Printf("template change detected (%s), resetting planning session", event.Name)
				w.session.Reset()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("template watcher error: %v", err)
		}
	}
}
