// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func Test_StatusPoller_Run(t *testing.T) {
	m := testManager(t, nil)
	mockClock := clock.NewMock()
	poller := NewStatusPoller(m, mockClock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var snapshots int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx, func(statuses []Status) {
			require.Len(t, statuses, 1)
			atomic.AddInt32(&snapshots, 1)
		})
	}()

	// Let the poller reach its ticker before advancing the clock.
	time.Sleep(50 * time.Millisecond)

	mockClock.Add(time.Second)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&snapshots) == 1
	}, time.Second, 10*time.Millisecond)

	mockClock.Add(2 * time.Second)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&snapshots) == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on context cancel")
	}
}
