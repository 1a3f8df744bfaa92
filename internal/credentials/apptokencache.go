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
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/dgrijalva/jwt-go/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sigcache/ghcacheproxy/internal/errs"
	"github.com/sigcache/ghcacheproxy/internal/ttumap"
)

// AppTokenCache mints and caches installation access tokens for a set of
// configured GitHub App installations. A token is reused until it nears
// its expiry by the configured padding, at which point it is evicted and
// the next Get re-mints it.
//
// This is the same shape as ghproxy's apptokenequalizer, but where that
// RoundTripper de-duplicates tokens observed flowing *through* the proxy,
// this cache originates the mint request itself.
type AppTokenCache struct {
	apiBase string
	client  *http.Client
	padding time.Duration

	tokens *ttumap.Map[string, InstallationToken]
	group  singleflight.Group
}

// NewAppTokenCache creates a cache bounded to maxSize installations, each
// token evicted padding before its reported expiry.
func NewAppTokenCache(apiBase string, client *http.Client, maxSize int, padding time.Duration) *AppTokenCache {
	return &AppTokenCache{
		apiBase: strings.TrimRight(apiBase, "/"),
		client:  client,
		padding: padding,
		tokens:  ttumap.New[string, InstallationToken](maxSize),
	}
}

// Get returns a cached, non-expired installation token for app, minting one
// if necessary. Concurrent Gets for the same app's installation collapse
// into a single mint call via singleflight; this is a performance
// optimization, not a correctness requirement (spec allows the stampede).
func (c *AppTokenCache) Get(ctx context.Context, app AppInstallation) (InstallationToken, error) {
	if tok, ok := c.tokens.Get(app.Name); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do(app.Name, func() (interface{}, error) {
		if tok, ok := c.tokens.Get(app.Name); ok {
			return tok, nil
		}
		tok, err := c.mint(ctx, app)
		if err != nil {
			return InstallationToken{}, err
		}
		c.tokens.Mark(app.Name, tok, tok.ExpiresAt.Add(-c.padding))
		return tok, nil
	})
	if err != nil {
		return InstallationToken{}, err
	}
	return v.(InstallationToken), nil
}

func (c *AppTokenCache) mint(ctx context.Context, app AppInstallation) (InstallationToken, error) {
	log := logrus.WithFields(logrus.Fields{"app": app.Name, "installation-id": app.InstallationID})

	signed, err := c.signJWT(app)
	if err != nil {
		log.WithError(err).Error("Failed to sign app JWT.")
		return InstallationToken{}, fmt.Errorf("%w: signing jwt for app %s: %v", errs.ErrAppTokenMintFailure, app.Name, err)
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.apiBase, app.InstallationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return InstallationToken{}, fmt.Errorf("%w: building mint request: %v", errs.ErrAppTokenMintFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+signed)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.WithError(err).Error("Failed to reach access_tokens endpoint.")
		return InstallationToken{}, fmt.Errorf("%w: %v", errs.ErrAppTokenMintFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithField("status", resp.StatusCode).Error("Non-2xx minting installation token.")
		return InstallationToken{}, fmt.Errorf("%w: status %d from access_tokens", errs.ErrAppTokenMintFailure, resp.StatusCode)
	}

	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.WithError(err).Error("Failed to decode access_tokens response.")
		return InstallationToken{}, fmt.Errorf("%w: decoding response: %v", errs.ErrAppTokenMintFailure, err)
	}

	log.Debug("Minted new installation token.")
	return InstallationToken{Value: body.Token, ExpiresAt: body.ExpiresAt}, nil
}

// signJWT produces the short-lived JWT GitHub exchanges for an installation
// token: {iss: appId, iat: now, exp: now+10m}, signed RS256 with the App's
// private key.
func (c *AppTokenCache) signJWT(app AppInstallation) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(app.PrivateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("parsing app private key: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": app.AppID,
		"iat": now.Unix(),
		"exp": now.Add(10 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}
