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

package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// memEntry pairs a stored response with the instant it was written, so
// Get can treat stale entries (older than the configured TTL) as misses
// even though the LRU itself hasn't evicted them yet.
type memEntry struct {
	response Response
	storedAt time.Time
}

// memBackend is an in-process, bounded-size, TTL-since-set Backend. Useful
// for a single-replica deployment or for tests; ghproxy's teacher used an
// analogous in-memory cache (httpcache.NewMemoryCache, unbounded)
// for the same "default, no external dependency" role.
type memBackend struct {
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

const defaultMemCacheSize = 4096

// NewInMemory creates a bounded in-memory ResponseCache backend. maxSize
// <= 0 falls back to a sane default.
func NewInMemory(maxSize int, ttl time.Duration) Backend {
	if maxSize <= 0 {
		maxSize = defaultMemCacheSize
	}
	l, err := lru.New(maxSize)
	if err != nil {
		// lru.New only errors on size <= 0, which we've just guarded against.
		panic(err)
	}
	return &memBackend{lru: l, ttl: ttl, now: time.Now}
}

func (m *memBackend) Get(key Key) (Response, bool, error) {
	v, ok := m.lru.Get(key.String())
	if !ok {
		return Response{}, false, nil
	}
	entry := v.(memEntry)
	if m.now().Sub(entry.storedAt) > m.ttl {
		m.lru.Remove(key.String())
		return Response{}, false, nil
	}
	return entry.response, true, nil
}

func (m *memBackend) Set(key Key, value Response) error {
	m.lru.Add(key.String(), memEntry{response: value, storedAt: m.now()})
	return nil
}
