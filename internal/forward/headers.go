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

package forward

import "net/http"

// hopByHop per RFC 2616 §13.5.1: a proxy must not forward these.
var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Transfer-Encoding":   {},
	"Te":                  {},
	"Trailer":             {},
	"Upgrade":             {},
	"Proxy-Authorization": {},
	"Proxy-Authenticate":  {},
}

// requestFiltered is stripped from the inbound request before forwarding:
// Host plus all hop-by-hop headers. The host header is rewritten
// automatically to the upstream target.
var requestFiltered = union(hopByHop, "Host")

// responseFiltered is stripped from the upstream response before it's
// returned to the client: Content-Length/Content-Encoding (to avoid bad
// framing once the body may have been re-serialized) plus hop-by-hop.
var responseFiltered = union(hopByHop, "Content-Length", "Content-Encoding")

func union(base map[string]struct{}, extra ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for k := range base {
		out[k] = struct{}{}
	}
	for _, k := range extra {
		out[k] = struct{}{}
	}
	return out
}

func filterHeaders(src http.Header, filtered map[string]struct{}) http.Header {
	dst := make(http.Header, len(src))
	for k, v := range src {
		if _, skip := filtered[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		dst[k] = append([]string(nil), v...)
	}
	return dst
}
