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

// Package config loads the proxy's environment-variable configuration and
// the client registry YAML file, the two out-of-scope configuration
// collaborators named in spec.md's system overview.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/sigcache/ghcacheproxy/internal/credentials"
	"github.com/sigcache/ghcacheproxy/internal/errs"
)

// Config is everything loaded from the environment at startup.
type Config struct {
	GitHubAPIURL         string
	CacheBackendURL      string
	CacheTTL             time.Duration
	CredsCacheMaxSize    int
	CredsCacheTTLPadding time.Duration
	Pool                 credentials.Pool
	ClientRegistryPath   string
}

const (
	defaultGitHubAPIURL      = "https://api.github.com"
	defaultCredsCacheMaxSize = 1000
)

// Load reads a .env file if present (never an error if absent) and then
// the recognized environment variables into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Found a .env file but couldn't load it.")
	}
	return FromEnviron(os.Environ())
}

// FromEnviron builds a Config from an explicit environ slice (as returned
// by os.Environ), so tests don't have to mutate process-global state.
func FromEnviron(environ []string) (Config, error) {
	env := map[string]string{}
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}

	cfg := Config{
		GitHubAPIURL:       getOrDefault(env, "GITHUB_API_URL", defaultGitHubAPIURL),
		CacheBackendURL:    env["CACHE_BACKEND_URL"],
		ClientRegistryPath: env["CLIENT_REGISTRY_FILE_PATH"],
	}

	ttl, err := parseSeconds(env, "CACHE_TTL", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheTTL = ttl

	maxSize, err := parseInt(env, "GITHUB_CREDS_CACHE_MAXSIZE", defaultCredsCacheMaxSize)
	if err != nil {
		return Config{}, err
	}
	cfg.CredsCacheMaxSize = maxSize

	padding, err := parseMinutes(env, "GITHUB_CREDS_CACHE_TTL_PADDING", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.CredsCacheTTLPadding = padding

	pool, err := parsePool(environ)
	if err != nil {
		return Config{}, err
	}
	cfg.Pool = pool

	return cfg, nil
}

// parsePool groups GITHUB_PAT_<name> and GITHUB_APP_<name>_{ID,INSTALLATION_ID,PEM}
// entries into a credentials.Pool. It walks environ directly, rather than
// a map built from it, because Go randomizes map iteration order and the
// relative order of multiple PATs (and of multiple Apps) must match
// configuration order, per spec.
func parsePool(environ []string) (credentials.Pool, error) {
	var pool credentials.Pool
	apps := map[string]*credentials.AppInstallation{}
	var appOrder []string

	for _, kv := range environ {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			continue
		}
		key, val := kv[:i], kv[i+1:]

		switch {
		case strings.HasPrefix(key, "GITHUB_PAT_"):
			name := strings.ToLower(strings.TrimPrefix(key, "GITHUB_PAT_"))
			pool.PATs = append(pool.PATs, credentials.PAT{Name: name, Value: val})

		case strings.HasPrefix(key, "GITHUB_APP_"):
			rest := strings.TrimPrefix(key, "GITHUB_APP_")
			name, field, ok := splitAppField(rest)
			if !ok {
				continue
			}
			lower := strings.ToLower(name)
			app, seen := apps[lower]
			if !seen {
				app = &credentials.AppInstallation{Name: lower}
				apps[lower] = app
				appOrder = append(appOrder, lower)
			}
			switch field {
			case "ID":
				app.AppID = val
			case "INSTALLATION_ID":
				id, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					return credentials.Pool{}, fmt.Errorf("%w: %s: not an integer installation id", errs.ErrConfigurationError, key)
				}
				app.InstallationID = id
			case "PEM":
				app.PrivateKeyPEM = []byte(val)
			}
		}
	}

	for _, name := range appOrder {
		app := apps[name]
		if app.AppID == "" || app.InstallationID == 0 || len(app.PrivateKeyPEM) == 0 {
			return credentials.Pool{}, fmt.Errorf("%w: app %q missing one of ID/INSTALLATION_ID/PEM", errs.ErrConfigurationError, name)
		}
		pool.Apps = append(pool.Apps, *app)
	}

	return pool, nil
}

// splitAppField peels the trailing _ID, _INSTALLATION_ID, or _PEM suffix
// off a GITHUB_APP_<name>_<field> key, leaving <name>.
func splitAppField(rest string) (name, field string, ok bool) {
	for _, suffix := range []string{"_INSTALLATION_ID", "_ID", "_PEM"} {
		if strings.HasSuffix(rest, suffix) {
			return strings.TrimSuffix(rest, suffix), strings.TrimPrefix(suffix, "_"), true
		}
	}
	return "", "", false
}

func getOrDefault(env map[string]string, key, def string) string {
	if v, ok := env[key]; ok && v != "" {
		return v
	}
	return def
}

func parseSeconds(env map[string]string, key string, def int) (time.Duration, error) {
	n, err := parseInt(env, key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parseMinutes(env map[string]string, key string, def int) (time.Duration, error) {
	n, err := parseInt(env, key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

func parseInt(env map[string]string, key string, def int) (int, error) {
	v, ok := env[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: not an integer: %v", errs.ErrConfigurationError, key, err)
	}
	return n, nil
}
