package forward

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcache/ghcacheproxy/internal/credentials"
	"github.com/sigcache/ghcacheproxy/internal/ratelimit"
)

func newTestServer(t *testing.T, rateLimited map[string]bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if rateLimited[auth] {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", "100")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
}

func TestForwarderRotatesPastRateLimitedCredential(t *testing.T) {
	srv := newTestServer(t, map[string]bool{"token pat-a": true})
	defer srv.Close()

	pool := credentials.Pool{PATs: []credentials.PAT{
		{Name: "a", Value: "pat-a"},
		{Name: "b", Value: "pat-b"},
	}}
	rl := ratelimit.New(16, 0)
	f := New(srv.URL, srv.Client(), pool, rl, nil, nil)

	result, err := f.Send(context.Background(), http.MethodGet, "/repos/o/r/issues", nil, http.Header{}, Conditional{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "b", result.Credential.Name)

	assert.True(t, rl.Contains(ratelimit.Key{Origin: ratelimit.OriginPAT, Name: "a"}))
}

func TestForwarderReturnsErrorWhenAllCredentialsRateLimited(t *testing.T) {
	srv := newTestServer(t, map[string]bool{"token pat-a": true, "token pat-b": true})
	defer srv.Close()

	pool := credentials.Pool{PATs: []credentials.PAT{
		{Name: "a", Value: "pat-a"},
		{Name: "b", Value: "pat-b"},
	}}
	rl := ratelimit.New(16, 0)
	f := New(srv.URL, srv.Client(), pool, rl, nil, nil)

	_, err := f.Send(context.Background(), http.MethodGet, "/repos/o/r/issues", nil, http.Header{}, Conditional{})
	require.Error(t, err)
}

func TestForwarderNeverReusesARateLimitedCredentialWithinARequest(t *testing.T) {
	srv := newTestServer(t, map[string]bool{"token pat-a": true})
	defer srv.Close()

	pool := credentials.Pool{PATs: []credentials.PAT{{Name: "a", Value: "pat-a"}}}
	rl := ratelimit.New(16, 0)
	f := New(srv.URL, srv.Client(), pool, rl, nil, nil)

	_, err := f.Send(context.Background(), http.MethodGet, "/repos/o/r/issues", nil, http.Header{}, Conditional{})
	require.Error(t, err)
	assert.True(t, rl.Contains(ratelimit.Key{Origin: ratelimit.OriginPAT, Name: "a"}))
}

func TestApplyConditionalPrefersLastModifiedOverETag(t *testing.T) {
	h := http.Header{}
	applyConditional(h, Conditional{ETag: `"abc"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"})
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", h.Get("If-Modified-Since"))
	assert.Empty(t, h.Get("If-None-Match"))
}

func TestApplyConditionalFallsBackToETag(t *testing.T) {
	h := http.Header{}
	applyConditional(h, Conditional{ETag: `"abc"`})
	assert.Equal(t, `"abc"`, h.Get("If-None-Match"))
}

func TestFilterHeadersStripsHopByHopAndHost(t *testing.T) {
	src := http.Header{
		"Host":       []string{"example.com"},
		"Connection": []string{"keep-alive"},
		"Accept":     []string{"application/json"},
	}
	out := filterHeaders(src, requestFiltered)
	assert.Empty(t, out.Get("Host"))
	assert.Empty(t, out.Get("Connection"))
	assert.Equal(t, "application/json", out.Get("Accept"))
}
