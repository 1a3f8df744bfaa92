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

// Package auth implements client bearer-token authentication and
// method/path scope authorization, ported from proxy.py's Proxy.auth.
package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sigcache/ghcacheproxy/internal/errs"
)

// enterpriseAPIPrefix is stripped from the request path before scope
// matching, so a single client registry works for both github.com
// clients and GitHub Enterprise clients that route through /api/v3.
const enterpriseAPIPrefix = "/api/v3"

// matchAll matches any string; it's the default for a scope that omits
// one of its two patterns.
var matchAll = regexp.MustCompile(`.*`)

// Scope gates which upstream routes a client may invoke.
type Scope struct {
	Method *regexp.Regexp
	Path   *regexp.Regexp
}

// Client is one entry of the registry: a bearer token mapped to a name
// and the scopes it's allowed to use. An empty Scopes slice means full
// access (spec: "missing scopes means full access").
type Client struct {
	Token  string
	Name   string
	Scopes []Scope
}

// Registry is the validated, read-only set of known clients, keyed by
// bearer token.
type Registry struct {
	byToken map[string]Client
}

// NewRegistry validates clients (unique tokens, unique names) and builds
// a Registry. Returns ErrConfigurationError on a duplicate.
func NewRegistry(clients []Client) (*Registry, error) {
	byToken := make(map[string]Client, len(clients))
	names := make(map[string]struct{}, len(clients))

	for _, c := range clients {
		if _, ok := byToken[c.Token]; ok {
			return nil, fmt.Errorf("%w: duplicate client token", errs.ErrConfigurationError)
		}
		if _, ok := names[c.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate client name %q", errs.ErrConfigurationError, c.Name)
		}
		if len(c.Scopes) == 0 {
			c.Scopes = []Scope{{Method: matchAll, Path: matchAll}}
		}
		byToken[c.Token] = c
		names[c.Name] = struct{}{}
	}

	return &Registry{byToken: byToken}, nil
}

// Authorizer is the ClientAuthorizer component: given an inbound bearer
// token and request, returns the client name iff the token is registered
// and at least one of its scopes matches the request.
type Authorizer struct {
	registry *Registry
}

func NewAuthorizer(registry *Registry) *Authorizer {
	return &Authorizer{registry: registry}
}

// Authorize returns (clientName, true) on success, or ("", false) —
// corresponding to spec's Unauthorized — otherwise.
//
// Scope method matching tries both the lowercase and uppercase forms of
// the inbound HTTP method. This is a workaround for unspecified regex
// case-sensitivity in client registry files (some operators write "get",
// others "GET"); it is the contract, not an implementation accident.
func (a *Authorizer) Authorize(token, method, path string) (string, bool) {
	client, ok := a.registry.byToken[token]
	if !ok {
		return "", false
	}

	logicalPath := strings.TrimPrefix(path, enterpriseAPIPrefix)

	for _, scope := range client.Scopes {
		methodMatches := scope.Method.MatchString(strings.ToLower(method)) || scope.Method.MatchString(strings.ToUpper(method))
		if methodMatches && scope.Path.MatchString(logicalPath) {
			return client.Name, true
		}
	}
	return "", false
}
