package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is the in-process cache tier: LRU-bounded per namespace with
// per-entry TTLs. Keys carry a "namespace:" prefix; each namespace owns
// its own access-order list so write pressure in one namespace never
// evicts entries from another. Expired entries are dropped lazily on Get
// and in bulk by Sweep.
type Memory struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	orders   map[string]*list.List
	now      func() time.Time
}

type memoryEntry struct {
	key       string
	namespace string
	value     string
	expiresAt time.Time
}

// NewMemory builds the tier with the given per-namespace capacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 512
	}
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		orders:   make(map[string]*list.List),
		now:      time.Now,
	}
}

// namespaceOf returns the key's namespace prefix; keys without one share
// a single unnamed namespace.
func namespaceOf(key string) string {
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		return key[:idx]
	}
	return ""
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*memoryEntry)
	if m.now().After(entry.expiresAt) {
		m.removeLocked(elem)
		return "", false
	}
	m.orders[entry.namespace].MoveToFront(elem)
	return entry.value, true
}

func (m *Memory) Set(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(ttl)
	if elem, ok := m.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		m.orders[entry.namespace].MoveToFront(elem)
		return
	}

	namespace := namespaceOf(key)
	order, ok := m.orders[namespace]
	if !ok {
		order = list.New()
		m.orders[namespace] = order
	}
	if order.Len() >= m.capacity {
		m.evictOldestLocked(order)
	}
	elem := order.PushFront(&memoryEntry{
		key:       key,
		namespace: namespace,
		value:     value,
		expiresAt: expiresAt,
	})
	m.items[key] = elem
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.items[key]; ok {
		m.removeLocked(elem)
	}
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// NamespaceLen reports how many entries one namespace currently holds.
func (m *Memory) NamespaceLen(namespace string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[namespace]; ok {
		return order.Len()
	}
	return 0
}

// Sweep removes every expired entry and reports how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for _, order := range m.orders {
		for elem := order.Back(); elem != nil; {
			prev := elem.Prev()
			if entry := elem.Value.(*memoryEntry); now.After(entry.expiresAt) {
				m.removeLocked(elem)
				removed++
			}
			elem = prev
		}
	}
	return removed
}

// StartSweep runs Sweep on the given interval until ctx ends.
func (m *Memory) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

func (m *Memory) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)
	order := m.orders[entry.namespace]
	order.Remove(elem)
	if order.Len() == 0 {
		delete(m.orders, entry.namespace)
	}
}

func (m *Memory) evictOldestLocked(order *list.List) {
	if elem := order.Back(); elem != nil {
		m.removeLocked(elem)
	}
}
