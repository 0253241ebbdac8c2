// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package services

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// StatusPoller re-reads service statuses on a fixed interval and hands each
// snapshot to the callback. Ticks are independent: a slow callback delays
// nothing and nothing is queued, the next tick simply reads fresh state.
type StatusPoller struct {
	manager  *Manager
	clk      clock.Clock
	interval time.Duration
}

// NewStatusPoller creates a poller over the manager. A nil clock defaults to
// the wall clock.
func NewStatusPoller(manager *Manager, clk clock.Clock, interval time.Duration) *StatusPoller {
	if clk == nil {
		clk = clock.New()
	}

	return &StatusPoller{
		manager:  manager,
		clk:      clk,
		interval: interval,
	}
}

// Run polls until the context is cancelled. Each tick invokes the callback
// with the current snapshot.
func (p *StatusPoller) Run(ctx context.Context, onSnapshot func([]Status)) {
	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go onSnapshot(p.manager.Statuses())
		}
	}
}
