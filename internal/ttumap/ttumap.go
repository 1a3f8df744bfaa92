/*
Copyright 2024 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ttumap implements an associative container whose entries carry a
// per-insert time-to-use (TTU) rather than a fixed TTL: the caller supplies
// the wall-clock instant at which each entry stops being visible. This
// matches GitHub's rate-limit reset timestamps and App token expiries,
// which are wall-clock values handed to us by the remote server rather than
// something we can express as "N seconds from now, by our own monotonic
// clock".
//
// No library in the reference corpus provides priority-queue-by-expiry
// eviction (hashicorp/golang-lru and the ecosystem's TTL caches all evict by
// recency or by a single shared TTL); this is implemented directly on
// container/heap, the same way the Python original's ratelimit map was
// documented as wanting "a TLRU cache" with a custom ttu function.
package ttumap

import (
	"container/heap"
	"sync"
	"time"
)

// Clock allows tests to control "now".
type Clock func() time.Time

type item[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	index     int
}

type priorityQueue[K comparable, V any] []*item[K, V]

func (pq priorityQueue[K, V]) Len() int { return len(pq) }
func (pq priorityQueue[K, V]) Less(i, j int) bool {
	return pq[i].expiresAt.Before(pq[j].expiresAt)
}
func (pq priorityQueue[K, V]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *priorityQueue[K, V]) Push(x any) {
	it := x.(*item[K, V])
	it.index = len(*pq)
	*pq = append(*pq, it)
}
func (pq *priorityQueue[K, V]) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// Map is a thread-safe set of keys, each carrying a value and a wall-clock
// expiry. Entries become invisible to Get/Contains once now >= expiresAt,
// and are swept out of the underlying heap lazily on the next call to
// Mark, Contains, Get or Len. When maxSize is exceeded, the entry with the earliest expiry is
// evicted, regardless of whether it has itself expired yet.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*item[K, V]
	pq      priorityQueue[K, V]
	maxSize int
	now     Clock
}

// New creates an empty Map. maxSize <= 0 means unbounded.
func New[K comparable, V any](maxSize int) *Map[K, V] {
	return &Map[K, V]{
		items:   make(map[K]*item[K, V]),
		pq:      make(priorityQueue[K, V], 0),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// NewWithClock is like New but lets tests supply a deterministic clock.
func NewWithClock[K comparable, V any](maxSize int, now Clock) *Map[K, V] {
	m := New[K, V](maxSize)
	m.now = now
	return m
}

// Mark inserts or overwrites the entry for key, visible until expiresAt.
func (m *Map[K, V]) Mark(key K, value V, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictExpiredLocked()

	if existing, ok := m.items[key]; ok {
		existing.value = value
		existing.expiresAt = expiresAt
		heap.Fix(&m.pq, existing.index)
		return
	}

	it := &item[K, V]{key: key, value: value, expiresAt: expiresAt}
	m.items[key] = it
	heap.Push(&m.pq, it)

	if m.maxSize > 0 && len(m.items) > m.maxSize {
		m.evictEarliestLocked()
	}
}

// Contains reports whether key has a non-expired entry.
func (m *Map[K, V]) Contains(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpiredLocked()
	_, ok := m.items[key]
	return ok
}

// Get returns the value for key if it has a non-expired entry.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpiredLocked()
	it, ok := m.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Len returns the number of non-expired entries.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpiredLocked()
	return len(m.items)
}

func (m *Map[K, V]) evictExpiredLocked() {
	now := m.now()
	for m.pq.Len() > 0 && !m.pq[0].expiresAt.After(now) {
		it := heap.Pop(&m.pq).(*item[K, V])
		delete(m.items, it.key)
	}
}

func (m *Map[K, V]) evictEarliestLocked() {
	if m.pq.Len() == 0 {
		return
	}
	it := heap.Pop(&m.pq).(*item[K, V])
	delete(m.items, it.key)
}
