package storage

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCache_SetGet(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)

	cache.Set("key1", "value1")

	value, found := cache.Get("key1")
	if !found {
		t.Fatal("Expected to find key1")
	}
	if value != "value1" {
		t.Errorf("Expected value1, got %v", value)
	}

	if _, found := cache.Get("missing"); found {
		t.Error("Expected miss for unknown key")
	}
}

func TestLRUCache_SetUpdatesExisting(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)

	cache.Set("key1", "old")
	cache.Set("key1", "new")

	value, _ := cache.Get("key1")
	if value != "new" {
		t.Errorf("Expected updated value, got %v", value)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", cache.Len())
	}
}

func TestLRUCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := NewLRUCache(3, time.Minute)

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("key%d", i), i)
	}

	// Touch key0 so key1 is the eviction candidate
	cache.Get("key0")

	cache.Set("key3", 3)

	if cache.Len() != 3 {
		t.Errorf("Expected capacity 3, got %d", cache.Len())
	}
	if _, found := cache.Get("key1"); found {
		t.Error("Expected least recently used key1 to be evicted")
	}
	if _, found := cache.Get("key0"); !found {
		t.Error("Expected recently used key0 to survive")
	}
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	cache := NewLRUCache(10, 10*time.Millisecond)

	cache.Set("key1", "value1")
	time.Sleep(20 * time.Millisecond)

	if _, found := cache.Get("key1"); found {
		t.Error("Expected expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Errorf("Expected expired entry removed on read, got %d entries", cache.Len())
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)

	cache.Set("key1", "value1")
	cache.Delete("key1")

	if _, found := cache.Get("key1"); found {
		t.Error("Expected deleted key to miss")
	}

	// Deleting an absent key is a no-op
	cache.Delete("missing")
}

func TestLRUCache_Clear(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")
	cache.Clear()

	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d entries", cache.Len())
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	cache := NewLRUCache(10, 10*time.Millisecond)

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")
	time.Sleep(20 * time.Millisecond)

	removed := cache.CleanupExpired()
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache after cleanup, got %d entries", cache.Len())
	}
}
