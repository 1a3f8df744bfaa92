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

package cache

import (
	"fmt"
	"net/url"
	"time"

	"github.com/sigcache/ghcacheproxy/internal/errs"
)

// NewFromURL builds a ResponseCache backend selected by backendURL's
// scheme: inmemory://, redis://, rediss://. This mirrors the Python
// original's CacheBackend.factory, which dispatched on urlparse(...).scheme
// against a small registry of backend classes.
func NewFromURL(backendURL string, maxSize int, ttl time.Duration) (*ResponseCache, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing cache backend url: %v", errs.ErrConfigurationError, err)
	}

	switch u.Scheme {
	case "inmemory":
		return New(NewInMemory(maxSize, ttl)), nil
	case "redis", "rediss":
		return New(NewRedis(backendURL, ttl)), nil
	default:
		return nil, fmt.Errorf("%w: unknown cache backend scheme %q", errs.ErrConfigurationError, u.Scheme)
	}
}
