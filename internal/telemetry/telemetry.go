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

// Package telemetry defines the TelemetrySink collaborator and its
// Prometheus implementation, modeled on ghproxy/ghmetrics but re-keyed to
// this proxy's two emission points: one per upstream response, one per
// inbound request.
package telemetry

import (
	"net/http"

	"github.com/sigcache/ghcacheproxy/internal/ratelimit"
)

// CacheHit is a three-state outcome: a GET can be a revalidated hit, a
// miss (forwarded and possibly now cached), or "none" when the resource
// turned out not to be cacheable at all. The Python original makes this
// third state explicit rather than collapsing it into false.
type CacheHit string

const (
	CacheHitTrue  CacheHit = "true"
	CacheHitFalse CacheHit = "false"
	CacheHitNone  CacheHit = "none"
)

// CredentialIdentity is the minimal credential shape telemetry needs;
// defined here (rather than importing internal/credentials) to keep this
// package dependency-light and reusable from the Forwarder.
type CredentialIdentity struct {
	Origin ratelimit.Origin
	Name   string
}

// Sink is the pluggable telemetry collaborator. A no-op implementation
// must be substitutable, per spec.
type Sink interface {
	// OnUpstreamResponse is called once per attempt against GitHub,
	// including rate-limited attempts.
	OnUpstreamResponse(cred CredentialIdentity, resp *http.Response)
	// OnInboundRequest is called once per request the core serves, for
	// GETs including the resolved cache outcome.
	OnInboundRequest(client, method, path string, cacheHit CacheHit)
}

// NoOp is a Sink that does nothing; the default when no other
// implementation is wired.
type NoOp struct{}

func (NoOp) OnUpstreamResponse(CredentialIdentity, *http.Response) {}
func (NoOp) OnInboundRequest(string, string, string, CacheHit)     {}
