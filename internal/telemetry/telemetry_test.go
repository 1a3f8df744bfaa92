package telemetry

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sigcache/ghcacheproxy/internal/ratelimit"
)

func TestNoOpDoesNotPanic(t *testing.T) {
	var s Sink = NoOp{}
	s.OnUpstreamResponse(CredentialIdentity{Origin: ratelimit.OriginApp, Name: "a"}, &http.Response{StatusCode: 200})
	s.OnInboundRequest("client", "GET", "/zen", CacheHitTrue)
}

func TestPrometheusSinkDoesNotPanic(t *testing.T) {
	p := NewPrometheus()
	req, _ := http.NewRequest(http.MethodGet, "https://api.github.com/zen", nil)
	resp := &http.Response{StatusCode: 200, Header: http.Header{"X-Ratelimit-Remaining": []string{"10"}}, Request: req}
	assert.NotPanics(t, func() {
		p.OnUpstreamResponse(CredentialIdentity{Origin: ratelimit.OriginPAT, Name: "p"}, resp)
		p.OnInboundRequest("client", "GET", "/zen", CacheHitNone)
	})
}
