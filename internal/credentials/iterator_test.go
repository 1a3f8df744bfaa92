package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcache/ghcacheproxy/internal/ratelimit"
)

func TestIteratorOrderingAppsBeforePATs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "app-token",
			"expires_at": time.Now().Add(time.Hour),
		})
	}))
	defer srv.Close()

	tokens := NewAppTokenCache(srv.URL, srv.Client(), 10, time.Minute)
	rl := ratelimit.New(0, time.Minute)

	pool := Pool{
		Apps: []AppInstallation{{Name: "A", AppID: "1", PrivateKeyPEM: generateTestKeyPEM(t), InstallationID: 1}},
		PATs: []PAT{{Name: "P", Value: "pat-value"}},
	}

	it := NewIterator(context.Background(), pool, rl, tokens)

	first, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, ratelimit.OriginApp, first.Origin)
	assert.Equal(t, "A", first.Name)

	second, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, ratelimit.OriginPAT, second.Origin)
	assert.Equal(t, "P", second.Name)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestIteratorSkipsRateLimitedCredentials(t *testing.T) {
	rl := ratelimit.New(0, time.Minute)
	rl.Mark(ratelimit.Key{Origin: ratelimit.OriginPAT, Name: "limited"}, time.Now().Add(time.Hour))

	pool := Pool{
		PATs: []PAT{
			{Name: "limited", Value: "x"},
			{Name: "ok", Value: "y"},
		},
	}

	it := NewIterator(context.Background(), pool, rl, NewAppTokenCache("https://api.github.com", http.DefaultClient, 10, time.Minute))

	cred, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "ok", cred.Name)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestIteratorSkipsAppsThatFailToMint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tokens := NewAppTokenCache(srv.URL, srv.Client(), 10, time.Minute)
	rl := ratelimit.New(0, time.Minute)

	pool := Pool{
		Apps: []AppInstallation{{Name: "broken", AppID: "1", PrivateKeyPEM: generateTestKeyPEM(t), InstallationID: 1}},
		PATs: []PAT{{Name: "fallback", Value: "y"}},
	}

	it := NewIterator(context.Background(), pool, rl, tokens)

	cred, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "fallback", cred.Name, "app that fails to mint should be skipped, not returned")
}
