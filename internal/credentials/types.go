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

// Package credentials produces, on demand, the pool of GitHub credentials
// the proxy rotates across: installation tokens minted from configured
// GitHub Apps, and long-lived Personal Access Tokens. It never persists
// credential values; they are derived materializations.
package credentials

import (
	"time"

	"github.com/sigcache/ghcacheproxy/internal/ratelimit"
)

// Credential is a materialized GitHub credential ready to be placed in an
// Authorization header.
type Credential struct {
	Name   string
	Origin ratelimit.Origin
	Value  string
}

// Key identifies this credential for rate-limit bookkeeping.
func (c Credential) Key() ratelimit.Key {
	return ratelimit.Key{Origin: c.Origin, Name: c.Name}
}

// AppInstallation is an immutable GitHub App installation configuration,
// loaded once at startup.
type AppInstallation struct {
	Name           string
	AppID          string
	PrivateKeyPEM  []byte
	InstallationID int64
}

// InstallationToken is a short-lived credential exchanged for an App JWT.
type InstallationToken struct {
	Value     string
	ExpiresAt time.Time
}
