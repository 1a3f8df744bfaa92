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

// Package forward implements the Forwarder: it walks the credential
// iterator, attaches conditional headers, and retries against GitHub
// until a non-rate-limited response comes back or the pool is
// exhausted. Modeled on github_proxy/proxy.py's _send_gh_request.
package forward

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sigcache/ghcacheproxy/internal/credentials"
	"github.com/sigcache/ghcacheproxy/internal/errs"
	"github.com/sigcache/ghcacheproxy/internal/ratelimit"
	"github.com/sigcache/ghcacheproxy/internal/telemetry"
)

// Conditional carries the validator headers a prior cached response
// exposed. LastModified takes priority over ETag; a caller that sets
// both will only have LastModified sent, matching GitHub's own
// precedence for conditional requests.
type Conditional struct {
	ETag         string
	LastModified string
}

// Result is what a forwarded attempt produced: the upstream response
// (headers filtered, body fully read) plus which credential served it.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Credential telemetry.CredentialIdentity
}

// Forwarder owns the shared HTTP client and credential pool used to
// reach the GitHub API.
type Forwarder struct {
	apiBase    string
	client     *http.Client
	pool       credentials.Pool
	rateLimits *ratelimit.Map
	tokens     *credentials.AppTokenCache
	telemetry  telemetry.Sink
}

func New(apiBase string, client *http.Client, pool credentials.Pool, rateLimits *ratelimit.Map, tokens *credentials.AppTokenCache, sink telemetry.Sink) *Forwarder {
	if sink == nil {
		sink = telemetry.NoOp{}
	}
	return &Forwarder{
		apiBase:    apiBase,
		client:     client,
		pool:       pool,
		rateLimits: rateLimits,
		tokens:     tokens,
		telemetry:  sink,
	}
}

// Send issues method/path against GitHub, rotating through the
// credential pool whenever a credential comes back rate-limited, until
// one succeeds or every credential has been tried. body may be nil.
func (f *Forwarder) Send(ctx context.Context, method, path string, body io.Reader, header http.Header, cond Conditional) (*Result, error) {
	it := credentials.NewIterator(ctx, f.pool, f.rateLimits, f.tokens)

	var lastErr error
	tried := 0
	for {
		cred, ok := it.Next()
		if !ok {
			if tried == 0 {
				return nil, fmt.Errorf("%w: no usable credentials", errs.ErrAllCredentialsRateLimited)
			}
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, errs.ErrAllCredentialsRateLimited
		}
		tried++

		result, rateLimited, err := f.attempt(ctx, cred, method, path, body, header, cond)
		if err != nil {
			// A network failure isn't a property of the credential, so it
			// isn't retried against the next one; it's surfaced directly.
			return nil, fmt.Errorf("%w: %v", errs.ErrUpstreamFailure, err)
		}
		if rateLimited {
			lastErr = errs.ErrAllCredentialsRateLimited
			continue
		}
		return result, nil
	}
}

// attempt performs a single request with a single credential. The bool
// return reports whether the response was a rate-limit rejection (403
// with x-ratelimit-remaining: 0), in which case the caller should
// rotate to the next credential rather than treat this as success.
func (f *Forwarder) attempt(ctx context.Context, cred credentials.Credential, method, path string, body io.Reader, header http.Header, cond Conditional) (*Result, bool, error) {
	url := strings.TrimRight(f.apiBase, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, false, err
	}
	req.Header = filterHeaders(header, requestFiltered)
	req.Header.Set("Authorization", "token "+cred.Value)
	applyConditional(req.Header, cond)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	ident := telemetry.CredentialIdentity{Origin: cred.Origin, Name: cred.Name}
	f.telemetry.OnUpstreamResponse(ident, resp)

	if isRateLimited(resp) {
		if resetAt, ok := parseRateLimitReset(resp.Header); ok {
			f.rateLimits.Mark(cred.Key(), resetAt)
		}
		io.Copy(io.Discard, resp.Body)
		return nil, true, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     filterHeaders(resp.Header, responseFiltered),
		Body:       data,
		Credential: ident,
	}, false, nil
}

// applyConditional enforces Last-Modified over ETag precedence: if
// both are present only Last-Modified is sent.
func applyConditional(h http.Header, cond Conditional) {
	switch {
	case cond.LastModified != "":
		h.Set("If-Modified-Since", cond.LastModified)
	case cond.ETag != "":
		h.Set("If-None-Match", cond.ETag)
	}
}

func isRateLimited(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func parseRateLimitReset(h http.Header) (time.Time, bool) {
	raw := h.Get("X-RateLimit-Reset")
	if raw == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logrus.WithError(err).WithField("x-ratelimit-reset", raw).Warn("Couldn't parse rate limit reset header.")
		return time.Time{}, false
	}
	whole := int64(secs)
	frac := secs - float64(whole)
	return time.Unix(whole, int64(frac*float64(time.Second))).UTC(), true
}
