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

// Package ghcacheproxy wires the credential rotation, cache, auth, and
// forwarding collaborators into the CachedGet read path and the four
// HTTP entry points the server layer exposes.
package ghcacheproxy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/sigcache/ghcacheproxy/internal/cache"
	"github.com/sigcache/ghcacheproxy/internal/forward"
	"github.com/sigcache/ghcacheproxy/internal/mediatype"
	"github.com/sigcache/ghcacheproxy/internal/telemetry"
)

// healthcheckClient is the synthetic client name CachedGet is invoked
// under for Health, matching proxy.py's Proxy.health.
const healthcheckClient = "healthcheck"

// Core implements CachedGet (spec §4.7): cache lookup, conditional
// upstream request via the Forwarder, cache update, telemetry emission.
type Core struct {
	cache     *cache.ResponseCache
	forwarder *forward.Forwarder
	telemetry telemetry.Sink
}

func New(respCache *cache.ResponseCache, fwd *forward.Forwarder, sink telemetry.Sink) *Core {
	if sink == nil {
		sink = telemetry.NoOp{}
	}
	return &Core{cache: respCache, forwarder: fwd, telemetry: sink}
}

// CachedGet serves a single GET: a cache hit revalidates against GitHub
// and, on 304, returns the cached response verbatim (including its
// original headers, by design: a client re-reading a cached rate-limit
// header sees the value observed when the entry was stored).
func (c *Core) CachedGet(ctx context.Context, path string, r *http.Request, clientName string) (cache.Response, error) {
	key := cache.Key{
		Path:      path,
		Query:     r.URL.RawQuery,
		MediaType: mediatype.Best(r.Header.Get("Accept")),
	}

	upstreamPath := path
	if key.Query != "" {
		upstreamPath = fmt.Sprintf("%s?%s", path, key.Query)
	}

	cached, hit := c.cache.Get(key)
	if !hit {
		result, err := c.forwarder.Send(ctx, http.MethodGet, upstreamPath, nil, r.Header, forward.Conditional{})
		if err != nil {
			return cache.Response{}, err
		}
		resp := responseFromResult(result)
		if resp.Cacheable() {
			c.cache.Set(key, resp)
			c.telemetry.OnInboundRequest(clientName, http.MethodGet, path, telemetry.CacheHitFalse)
		} else {
			c.telemetry.OnInboundRequest(clientName, http.MethodGet, path, telemetry.CacheHitNone)
		}
		return resp, nil
	}

	logrus.WithFields(logrus.Fields{
		"path":          path,
		"etag":          cached.ETag(),
		"last-modified": cached.LastModified(),
	}).Debug("Revalidating cached response.")

	result, err := c.forwarder.Send(ctx, http.MethodGet, upstreamPath, nil, r.Header, forward.Conditional{
		ETag:         cached.ETag(),
		LastModified: cached.LastModified(),
	})
	if err != nil {
		return cache.Response{}, err
	}

	if result.StatusCode == http.StatusNotModified {
		c.telemetry.OnInboundRequest(clientName, http.MethodGet, path, telemetry.CacheHitTrue)
		return cached, nil
	}

	resp := responseFromResult(result)
	if resp.Cacheable() {
		c.cache.Set(key, resp)
	}
	c.telemetry.OnInboundRequest(clientName, http.MethodGet, path, telemetry.CacheHitFalse)
	return resp, nil
}

// Forward handles the mutating-verb entry point (spec §4.8): no cache
// read or write, straight to the Forwarder, telemetry with cache_hit =
// none.
func (c *Core) Forward(ctx context.Context, method, path string, r *http.Request, clientName string) (cache.Response, error) {
	upstreamPath := path
	if r.URL.RawQuery != "" {
		upstreamPath = fmt.Sprintf("%s?%s", path, r.URL.RawQuery)
	}
	result, err := c.forwarder.Send(ctx, method, upstreamPath, r.Body, r.Header, forward.Conditional{})
	if err != nil {
		return cache.Response{}, err
	}
	c.telemetry.OnInboundRequest(clientName, method, path, telemetry.CacheHitNone)
	return responseFromResult(result), nil
}

// Health invokes CachedGet against /zen and reports whether GitHub
// answered 200, per spec §4.8.
func (c *Core) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/zen", nil)
	if err != nil {
		return false
	}
	resp, err := c.CachedGet(ctx, "zen", req, healthcheckClient)
	if err != nil {
		logrus.WithError(err).Warn("Health check request failed.")
		return false
	}
	return resp.StatusCode == http.StatusOK
}

func responseFromResult(result *forward.Result) cache.Response {
	return cache.Response{
		StatusCode: result.StatusCode,
		Header:     result.Header,
		Body:       result.Body,
	}
}
