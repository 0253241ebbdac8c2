// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cache

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func Test_Cache_GetSet(t *testing.T) {
	clk := clock.NewMock()
	c := NewWithClock(clk)

	_, ok := c.Get("azure_resources:dev")
	require.False(t, ok)

	c.Set("azure_resources:dev", `[{"name": "mydata001"}]`, AzureResourcesTTL)

	value, ok := c.Get("azure_resources:dev")
	require.True(t, ok)
	require.Equal(t, `[{"name": "mydata001"}]`, value)
}

func Test_Cache_Expiry(t *testing.T) {
	clk := clock.NewMock()
	c := NewWithClock(clk)

	c.Set("azure_resources:dev", "cached", AzureResourcesTTL)

	clk.Add(AzureResourcesTTL - time.Second)
	_, ok := c.Get("azure_resources:dev")
	require.True(t, ok)

	clk.Add(2 * time.Second)
	_, ok = c.Get("azure_resources:dev")
	require.False(t, ok)
}

func Test_Cache_InvalidateAndClear(t *testing.T) {
	c := NewWithClock(clock.NewMock())

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)

	c.Invalidate("a")
	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	require.False(t, ok)
}
