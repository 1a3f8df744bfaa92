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

package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/sigcache/ghcacheproxy/internal/auth"
	"github.com/sigcache/ghcacheproxy/internal/errs"
)

// registryFile is the on-disk schema: {version: 1, clients: [...]}.
type registryFile struct {
	Version int              `yaml:"version"`
	Clients []registryClient `yaml:"clients"`
}

type registryClient struct {
	Name   string          `yaml:"name"`
	Token  string          `yaml:"token"`
	Scopes []registryScope `yaml:"scopes"`
}

type registryScope struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

// LoadClientRegistry reads path as a text/template expanded against the
// process environment, then parses the result as the client registry
// YAML schema. A missing scopes list means full access, per spec.
func LoadClientRegistry(path string) ([]auth.Client, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading client registry %s: %v", errs.ErrConfigurationError, path, err)
	}

	expanded, err := expandTemplate(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: expanding client registry template: %v", errs.ErrConfigurationError, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(expanded, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing client registry yaml: %v", errs.ErrConfigurationError, err)
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported client registry version %d", errs.ErrConfigurationError, file.Version)
	}

	clients := make([]auth.Client, 0, len(file.Clients))
	for _, c := range file.Clients {
		scopes, err := toScopes(c.Scopes)
		if err != nil {
			return nil, fmt.Errorf("%w: client %q: %v", errs.ErrConfigurationError, c.Name, err)
		}
		clients = append(clients, auth.Client{Token: c.Token, Name: c.Name, Scopes: scopes})
	}
	return clients, nil
}

func expandTemplate(raw string) ([]byte, error) {
	tmpl, err := template.New("client-registry").Parse(raw)
	if err != nil {
		return nil, err
	}
	env := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toScopes(in []registryScope) ([]auth.Scope, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]auth.Scope, 0, len(in))
	for _, s := range in {
		methodPattern, pathPattern := s.Method, s.Path
		if methodPattern == "" {
			methodPattern = ".*"
		}
		if pathPattern == "" {
			pathPattern = ".*"
		}
		method, err := regexp.Compile(methodPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid method pattern %q: %w", methodPattern, err)
		}
		path, err := regexp.Compile(pathPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", pathPattern, err)
		}
		out = append(out, auth.Scope{Method: method, Path: path})
	}
	return out, nil
}
