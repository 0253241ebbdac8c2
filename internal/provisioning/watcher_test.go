// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package provisioning

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mystira/devhub/pkg/infra"
)

func Test_TemplateWatcher_ResetsOnChange(t *testing.T) {
	dir := t.TempDir()
	session := infra.NewSession("dev")
	session.CompleteValidate()

	watcher := NewTemplateWatcher(dir, session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	// Give the watcher a moment to register before touching the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.bicep"), []byte("param location string"), 0o644))

	require.Eventually(t, func() bool {
		return session.Phase() == infra.PhaseUnvalidated
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func Test_TemplateWatcher_MissingDir(t *testing.T) {
	watcher := NewTemplateWatcher(filepath.Join(t.TempDir(), "absent"), infra.NewSession("dev"))
	require.Error(t, watcher.Run(context.Background()))
}
