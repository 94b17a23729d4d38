package cfengine

import (
	"testing"
)

func TestLRUCache(t *testing.T) {
	cache := newLRUCache[string, string](3)

	cache.Store("key1", "value1")
	cache.Store("key2", "value2")
	cache.Store("key3", "value3")

	if cache.Len() != 3 {
		t.Errorf("Expected cache length 3, got %d", cache.Len())
	}

	if val, ok := cache.Load("key1"); !ok || val != "value1" {
		t.Errorf("Expected to load key1=value1, got %v, %v", val, ok)
	}

	// key2 is now least recently used
	if evicted := cache.Store("key4", "value4"); !evicted {
		t.Error("Expected eviction when adding 4th item to cache with capacity 3")
	}
	if cache.Len() != 3 {
		t.Errorf("Expected cache length 3 after eviction, got %d", cache.Len())
	}
	if _, ok := cache.Load("key2"); ok {
		t.Error("Expected key2 to be evicted")
	}
	for _, key := range []string{"key1", "key3", "key4"} {
		if _, ok := cache.Load(key); !ok {
			t.Errorf("Expected %s to still be in cache", key)
		}
	}

	if !cache.Delete("key1") {
		t.Error("Expected Delete to return true for existing key")
	}
	if cache.Delete("key1") {
		t.Error("Expected Delete to return false for missing key")
	}
	if cache.Len() != 2 {
		t.Errorf("Expected cache length 2 after delete, got %d", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Expected cache length 0 after clear, got %d", cache.Len())
	}
}

func TestLRUCacheUpdateDoesNotEvict(t *testing.T) {
	cache := newLRUCache[int, int](2)
	cache.Store(1, 10)
	cache.Store(2, 20)
	if evicted := cache.Store(1, 11); evicted {
		t.Error("Updating an existing key must not evict")
	}
	if v, _ := cache.Load(1); v != 11 {
		t.Errorf("Expected updated value 11, got %d", v)
	}
}

func TestLRUCacheDeleteFunc(t *testing.T) {
	cache := newLRUCache[string, int](10)
	for i, key := range []string{"a1", "a2", "b1", "b2", "a3"} {
		cache.Store(key, i)
	}
	removed := cache.DeleteFunc(func(key string, _ int) bool {
		return key[0] == 'a'
	})
	if removed != 3 {
		t.Errorf("Expected 3 removed entries, got %d", removed)
	}
	if cache.Len() != 2 {
		t.Errorf("Expected 2 remaining entries, got %d", cache.Len())
	}
	if _, ok := cache.Load("b2"); !ok {
		t.Error("Expected b2 to survive DeleteFunc")
	}
}
