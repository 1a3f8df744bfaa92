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

// Package errs names the error taxonomy shared by the forwarding engine.
// These are sentinel values, not types: callers classify with errors.Is
// and add context with fmt.Errorf's %w.
package errs

import "errors"

// ErrAllCredentialsRateLimited is returned when the CredentialIterator is
// exhausted without ever producing a non-rate-limited upstream response.
// Operator-visible: the caller should surface this as a 5xx.
var ErrAllCredentialsRateLimited = errors.New("all available github credentials are rate limited")

// ErrUpstreamFailure wraps a network error or timeout talking to GitHub for
// a specific credential attempt. Not retried onto the next credential.
var ErrUpstreamFailure = errors.New("upstream github request failed")

// ErrAppTokenMintFailure indicates that an App installation token could not
// be minted (JWT signing failure or non-2xx from the access_tokens
// endpoint). Recovered locally by the CredentialIterator: the affected App
// is skipped for the current request.
var ErrAppTokenMintFailure = errors.New("failed to mint github app installation token")

// ErrConfigurationError is raised at load time only: duplicate client
// token/name, unknown cache backend scheme, malformed YAML. Fatal to
// process startup, never observed while serving.
var ErrConfigurationError = errors.New("invalid configuration")

// ErrUnauthorized names the outcome where the bearer token is unknown or
// none of the client's scopes match the request. The ClientAuthorizer
// reports that outcome as ok=false rather than returning this value.
var ErrUnauthorized = errors.New("unauthorized")
