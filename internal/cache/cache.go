// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

// Package cache provides a small in-memory TTL cache for responses from the
// cloud CLIs, keeping the status pollers from hammering them.
package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Default TTLs per cached payload kind.
const (
	AzureResourcesTTL    = 5 * time.Minute
	GithubDeploymentsTTL = 10 * time.Minute
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Cache is a string keyed TTL cache. Expired entries are dropped lazily on
// read.
type Cache struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
}

// New creates a cache on the wall clock.
func New() *Cache {
	return NewWithClock(clock.New())
}

// NewWithClock creates a cache on the provided clock, letting tests step
// time.
func NewWithClock(clk clock.Clock) *Cache {
	return &Cache{
		clock:   clk,
		entries: map[string]entry{},
	}
}

// Get returns the cached value when present and not expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}

	if c.clock.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}

	return e.value, true
}

// Set stores a value with the given TTL.
func (c *Cache) Set(key string, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
}

// Invalidate drops one key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string]entry{}
}
