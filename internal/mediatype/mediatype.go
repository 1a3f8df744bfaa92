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

// Package mediatype picks the best media type out of an inbound Accept
// header, mirroring werkzeug's request.accept_mimetypes.best used by the
// Python original. No Accept-header parser appears anywhere in the
// reference corpus, so this small RFC 7231 q-value parser is hand-rolled
// stdlib rather than grounded on a pack dependency.
package mediatype

import (
	"sort"
	"strconv"
	"strings"
)

// candidate is one comma-separated entry of an Accept header.
type candidate struct {
	value string
	q     float64
	order int
}

// Best returns the highest-priority media type named in accept, or "" if
// accept is empty or unparsable. Ties break on header order, matching the
// werkzeug behavior this is modeled on.
func Best(accept string) string {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return ""
	}

	parts := strings.Split(accept, ",")
	candidates := make([]candidate, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, q := parseQuality(part)
		if value == "" {
			continue
		}
		candidates = append(candidates, candidate{value: value, q: q, order: i})
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].q != candidates[j].q {
			return candidates[i].q > candidates[j].q
		}
		return candidates[i].order < candidates[j].order
	})
	return candidates[0].value
}

func parseQuality(part string) (value string, q float64) {
	q = 1.0
	segments := strings.Split(part, ";")
	value = strings.TrimSpace(segments[0])
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if !strings.HasPrefix(seg, "q=") {
			continue
		}
		if parsed, err := strconv.ParseFloat(strings.TrimPrefix(seg, "q="), 64); err == nil {
			q = parsed
		}
	}
	return value, q
}
