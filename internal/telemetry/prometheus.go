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

package telemetry

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ghTokenUsageGaugeVec tracks remaining calls per credential, labeled by a
// hash of the credential name (never the credential value) so dashboards
// don't leak secrets, mirroring ghmetrics' token_hash label.
var ghTokenUsageGaugeVec = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "github_token_usage",
		Help: "Remaining GitHub rate-limit budget last observed for a credential.",
	},
	[]string{"credential", "origin"},
)

var ghTokenLimitGaugeVec = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "github_token_limit",
		Help: "Last observed x-ratelimit-limit for a credential.",
	},
	[]string{"credential", "origin"},
)

var ghRequestsCounterVec = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "github_requests_total",
		Help: "Upstream GitHub requests by credential, path, and status.",
	},
	[]string{"credential", "path", "status"},
)

var proxyRequestsCounterVec = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ghcacheproxy_requests",
		Help: "Inbound requests served, by client and cache outcome.",
	},
	[]string{"client", "method", "cache_hit"},
)

func init() {
	prometheus.MustRegister(ghTokenUsageGaugeVec, ghTokenLimitGaugeVec, ghRequestsCounterVec, proxyRequestsCounterVec)
}

// Prometheus is the production TelemetrySink.
type Prometheus struct{}

func NewPrometheus() Prometheus { return Prometheus{} }

func (Prometheus) OnUpstreamResponse(cred CredentialIdentity, resp *http.Response) {
	credentialLabel := hashName(cred.Name)

	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		if v, err := strconv.ParseFloat(remaining, 64); err == nil {
			ghTokenUsageGaugeVec.WithLabelValues(credentialLabel, string(cred.Origin)).Set(v)
		} else {
			logrus.WithError(err).Debug("Couldn't parse x-ratelimit-remaining as float.")
		}
	}
	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		if v, err := strconv.ParseFloat(limit, 64); err == nil {
			ghTokenLimitGaugeVec.WithLabelValues(credentialLabel, string(cred.Origin)).Set(v)
		}
	}

	path := ""
	if resp.Request != nil {
		path = resp.Request.URL.Path
	}
	status := strconv.Itoa(resp.StatusCode)
	ghRequestsCounterVec.WithLabelValues(credentialLabel, path, status).Inc()
}

func (Prometheus) OnInboundRequest(client, method, path string, cacheHit CacheHit) {
	proxyRequestsCounterVec.WithLabelValues(client, method, string(cacheHit)).Inc()
}

func hashName(name string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(name)))[:12]
}
