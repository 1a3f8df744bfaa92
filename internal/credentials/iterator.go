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

package credentials

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/sigcache/ghcacheproxy/internal/ratelimit"
)

// Pool is the immutable, configuration-order set of credentials the
// Iterator walks. Apps take precedence over PATs, per spec.
type Pool struct {
	Apps []AppInstallation
	PATs []PAT
}

// PAT is a named, long-lived Personal Access Token.
type PAT struct {
	Name  string
	Value string
}

// Iterator is a single-shot, lazy sequence over the configured
// credentials: non-rate-limited Apps first (in configuration order), then
// non-rate-limited PATs. It is not restartable; the Forwarder constructs a
// fresh one per inbound request.
type Iterator struct {
	ctx        context.Context
	pool       Pool
	rateLimits *ratelimit.Map
	tokens     *AppTokenCache

	appIdx int
	patIdx int
}

// NewIterator builds a fresh, per-request credential iterator.
func NewIterator(ctx context.Context, pool Pool, rateLimits *ratelimit.Map, tokens *AppTokenCache) *Iterator {
	return &Iterator{ctx: ctx, pool: pool, rateLimits: rateLimits, tokens: tokens}
}

// Next returns the next usable credential, or ok=false once the pool is
// exhausted. App token mint failures and rate-limited entries are skipped
// transparently.
func (it *Iterator) Next() (Credential, bool) {
	for it.appIdx < len(it.pool.Apps) {
		app := it.pool.Apps[it.appIdx]
		it.appIdx++

		key := ratelimit.Key{Origin: ratelimit.OriginApp, Name: app.Name}
		if it.rateLimits.Contains(key) {
			continue
		}

		tok, err := it.tokens.Get(it.ctx, app)
		if err != nil {
			logrus.WithField("app", app.Name).WithError(err).Warn("Skipping app: failed to mint installation token.")
			continue
		}

		return Credential{Name: app.Name, Origin: ratelimit.OriginApp, Value: tok.Value}, true
	}

	for it.patIdx < len(it.pool.PATs) {
		pat := it.pool.PATs[it.patIdx]
		it.patIdx++

		key := ratelimit.Key{Origin: ratelimit.OriginPAT, Name: pat.Name}
		if it.rateLimits.Contains(key) {
			continue
		}

		return Credential{Name: pat.Name, Origin: ratelimit.OriginPAT, Value: pat.Value}, true
	}

	return Credential{}, false
}
