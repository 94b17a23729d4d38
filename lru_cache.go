// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cfengine

import (
	"container/list"
	"sync"
)

// lruCache is a thread-safe LRU cache bounded by capacity. When the cache
// is full, the least recently used item is evicted to make room.
type lruCache[K comparable, V any] struct {
	mu       sync.RWMutex
	capacity int
	cache    map[K]*list.Element
	lruList  *list.List
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// newLRUCache creates a new LRU cache with the specified capacity.
func newLRUCache[K comparable, V any](capacity int) *lruCache[K, V] {
	return &lruCache[K, V]{
		capacity: capacity,
		cache:    make(map[K]*list.Element),
		lruList:  list.New(),
	}
}

// Load retrieves a value and marks it most recently used.
func (c *lruCache[K, V]) Load(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*lruEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Store adds or updates a value. Returns true if an item was evicted.
func (c *lruCache[K, V]) Store(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value.(*lruEntry[K, V]).value = value
		return false
	}

	evicted := false
	if c.lruList.Len() >= c.capacity {
		if oldest := c.lruList.Back(); oldest != nil {
			c.lruList.Remove(oldest)
			delete(c.cache, oldest.Value.(*lruEntry[K, V]).key)
			evicted = true
		}
	}

	c.cache[key] = c.lruList.PushFront(&lruEntry[K, V]{key: key, value: value})
	return evicted
}

// Clear removes all items.
func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[K]*list.Element)
	c.lruList = list.New()
}

// Len returns the current number of items.
func (c *lruCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lruList.Len()
}

// DeleteFunc removes every item for which match returns true and reports
// how many were removed.
func (c *lruCache[K, V]) DeleteFunc(match func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.lruList.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*lruEntry[K, V])
		if match(entry.key, entry.value) {
			c.lruList.Remove(elem)
			delete(c.cache, entry.key)
			removed++
		}
		elem = next
	}
	return removed
}

// Delete removes a key. Returns true if the key was present.
func (c *lruCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lruList.Remove(elem)
		delete(c.cache, key)
		return true
	}
	return false
}
