package cache

import (
	"testing"
	"time"
)

func TestMemoryGetSetRoundTrip(t *testing.T) {
	m := NewMemory(4)
	m.Set("k1", "v1", time.Minute)

	value, ok := m.Get("k1")
	if !ok || value != "v1" {
		t.Fatalf("Get = (%q, %v), want (v1, true)", value, ok)
	}
	if _, ok := m.Get("absent"); ok {
		t.Fatalf("expected miss for absent key")
	}
}

func TestMemoryExpiresLazily(t *testing.T) {
	m := NewMemory(4)
	current := time.Now()
	m.now = func() time.Time { return current }

	m.Set("k1", "v1", time.Minute)
	current = current.Add(2 * time.Minute)

	if _, ok := m.Get("k1"); ok {
		t.Fatalf("expired entry must read as miss")
	}
	if m.Len() != 0 {
		t.Fatalf("expired entry must be dropped on read, len=%d", m.Len())
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory(2)
	m.Set("a", "1", time.Minute)
	m.Set("b", "2", time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := m.Get("a"); !ok {
		t.Fatalf("expected hit for a")
	}
	m.Set("c", "3", time.Minute)

	if _, ok := m.Get("b"); ok {
		t.Fatalf("least recently used entry must be evicted")
	}
	if _, ok := m.Get("a"); !ok {
		t.Fatalf("recently used entry must survive")
	}
	if _, ok := m.Get("c"); !ok {
		t.Fatalf("new entry must be present")
	}
}

func TestMemorySetUpdatesExistingEntry(t *testing.T) {
	m := NewMemory(2)
	m.Set("k", "old", time.Minute)
	m.Set("k", "new", time.Minute)

	if m.Len() != 1 {
		t.Fatalf("update must not grow the cache, len=%d", m.Len())
	}
	if value, _ := m.Get("k"); value != "new" {
		t.Fatalf("value=%q, want new", value)
	}
}

func TestMemoryZeroTTLIgnored(t *testing.T) {
	m := NewMemory(2)
	m.Set("k", "v", 0)
	if m.Len() != 0 {
		t.Fatalf("zero ttl writes must be dropped")
	}
}

func TestMemorySweepDropsOnlyExpired(t *testing.T) {
	m := NewMemory(8)
	current := time.Now()
	m.now = func() time.Time { return current }

	m.Set("short", "v", time.Minute)
	m.Set("long", "v", time.Hour)
	current = current.Add(10 * time.Minute)

	if removed := m.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d entries, want 1", removed)
	}
	if _, ok := m.Get("long"); !ok {
		t.Fatalf("unexpired entry must survive the sweep")
	}
	if m.Len() != 1 {
		t.Fatalf("len=%d after sweep, want 1", m.Len())
	}
}

func TestMemoryEvictionIsScopedToNamespace(t *testing.T) {
	m := NewMemory(3)
	m.Set("final:deep:abc", "deep answer", time.Hour)

	m.Set("spec:fast:k1", "1", time.Minute)
	m.Set("spec:fast:k2", "2", time.Minute)
	m.Set("spec:fast:k3", "3", time.Minute)
	m.Set("spec:fast:k4", "4", time.Minute)

	if _, ok := m.Get("final:deep:abc"); !ok {
		t.Fatalf("final-namespace entry must survive spec-namespace write pressure")
	}
	if m.NamespaceLen("spec") != 3 {
		t.Fatalf("spec namespace len=%d, want capacity 3", m.NamespaceLen("spec"))
	}
	if _, ok := m.Get("spec:fast:k1"); ok {
		t.Fatalf("overflowing namespace must evict its own oldest entry")
	}
	if _, ok := m.Get("spec:fast:k4"); !ok {
		t.Fatalf("newest spec entry must be present")
	}
}

func TestMemoryNamespaceLRUOrderIndependent(t *testing.T) {
	m := NewMemory(2)
	m.Set("spec:fast:a", "1", time.Minute)
	m.Set("final:deep:x", "1", time.Minute)
	m.Set("spec:fast:b", "2", time.Minute)

	// Touch only the spec entries; the final entry stays cold but must
	// not become an eviction candidate for spec writes.
	if _, ok := m.Get("spec:fast:a"); !ok {
		t.Fatalf("expected hit for spec:fast:a")
	}
	m.Set("spec:fast:c", "3", time.Minute)

	if _, ok := m.Get("spec:fast:b"); ok {
		t.Fatalf("least recently used spec entry must be evicted")
	}
	if _, ok := m.Get("final:deep:x"); !ok {
		t.Fatalf("cold entry in another namespace must survive")
	}
}
