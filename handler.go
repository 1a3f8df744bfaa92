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

package ghcacheproxy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sigcache/ghcacheproxy/internal/auth"
	"github.com/sigcache/ghcacheproxy/internal/cache"
	"github.com/sigcache/ghcacheproxy/internal/errs"
)

// Handler is the http.Handler entry point (spec §4.8): GET is routed
// through CachedGet, mutating verbs go straight to the Forwarder, both
// gated by the ClientAuthorizer.
type Handler struct {
	core       *Core
	authorizer *auth.Authorizer
}

func NewHandler(core *Core, authorizer *auth.Authorizer) *Handler {
	return &Handler{core: core, authorizer: authorizer}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r.Header.Get("Authorization"))
	clientName, ok := h.authorizer.Authorize(token, r.Method, r.URL.Path)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")

	var (
		resp cache.Response
		err  error
	)
	if r.Method == http.MethodGet {
		resp, err = h.core.CachedGet(r.Context(), path, r, clientName)
	} else {
		resp, err = h.core.Forward(r.Context(), r.Method, path, r, clientName)
	}
	h.write(w, resp, err)
}

func (h *Handler) write(w http.ResponseWriter, resp cache.Response, err error) {
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, errs.ErrAllCredentialsRateLimited) {
			status = http.StatusServiceUnavailable
		}
		logrus.WithError(err).Warn("Forwarding to GitHub failed.")
		http.Error(w, err.Error(), status)
		return
	}

	dst := w.Header()
	for k, v := range resp.Header {
		dst[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func bearerToken(header string) string {
	return strings.TrimPrefix(header, "token ")
}
