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

// Package ratelimit tracks which GitHub credentials are currently known to
// be rate limited, so the forwarding engine can skip them until their reset
// instant passes.
package ratelimit

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigcache/ghcacheproxy/internal/ttumap"
)

// Origin distinguishes the two kinds of GitHub credential the proxy
// rotates between. It lives here, rather than in the credentials package,
// because the credentials package needs to depend on ratelimit (to skip
// rate-limited entries during iteration) and a cycle must be avoided.
type Origin string

const (
	OriginApp Origin = "GitHub App"
	OriginPAT Origin = "User PAT"
)

// Key identifies a credential for rate-limit bookkeeping purposes.
type Key struct {
	Origin Origin
	Name   string
}

// Map is a time-expiring set of rate-limited credential keys. An entry
// marked with resetAt becomes invisible once now >= resetAt + padding,
// reflecting that GitHub's own rate-limit window has rolled over plus a
// safety margin for clock drift between this process and GitHub.
type Map struct {
	padding time.Duration
	entries *ttumap.Map[Key, struct{}]
}

// New creates a RateLimitMap bounded to maxSize entries. On overflow, the
// entry with the earliest reset is evicted first.
func New(maxSize int, padding time.Duration) *Map {
	return &Map{
		padding: padding,
		entries: ttumap.New[Key, struct{}](maxSize),
	}
}

// Mark records that the credential identified by key is rate limited until
// resetAt (as reported by GitHub's x-ratelimit-reset header).
func (m *Map) Mark(key Key, resetAt time.Time) {
	logrus.WithFields(logrus.Fields{
		"credential-origin": key.Origin,
		"credential-name":   key.Name,
		"reset-at":          resetAt,
	}).Warn("Credential is rate limited.")
	m.entries.Mark(key, struct{}{}, resetAt.Add(m.padding))
}

// Contains reports whether key is currently rate limited.
func (m *Map) Contains(key Key) bool {
	return m.entries.Contains(key)
}

// Len reports the number of credentials currently known to be rate limited.
func (m *Map) Len() int {
	return m.entries.Len()
}
