// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"sync"
)

// valueCache memoizes a cell value accessor for the duration of one
// evaluation call, so statistic scans and per-cell evaluation read every
// cell from the caller's storage once.
type valueCache struct {
	mu    sync.RWMutex
	get   ValueFunc
	cache map[Address]any
}

// newValueCache wraps get.
func newValueCache(get ValueFunc) *valueCache {
	return &valueCache{get: get, cache: make(map[Address]any)}
}

// Get returns the cached value of addr, or reads and caches it.
func (c *valueCache) Get(addr Address) any {
	// Check cache first (read lock)
	c.mu.RLock()
	if v, ok := c.cache[addr]; ok {
		c.mu.RUnlock()
		return v
	}
	c.mu.RUnlock()

	// Read from storage (no lock while calling out)
	v := c.get(addr)

	c.mu.Lock()
	// Double-check in case another goroutine cached it
	if existing, ok := c.cache[addr]; ok {
		c.mu.Unlock()
		return existing
	}
	c.cache[addr] = v
	c.mu.Unlock()
	return v
}

// Len returns the number of cached cells.
func (c *valueCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// cachedValues returns opts with its accessor memoized.
func cachedValues(opts EvalOptions) EvalOptions {
	if opts.GetValue != nil {
		opts.GetValue = newValueCache(opts.GetValue).Get
	}
	return opts
}
