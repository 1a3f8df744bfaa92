package credentials

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(key)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

func TestAppTokenCacheMintsAndCaches(t *testing.T) {
	var mintCount int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&mintCount, 1)
		assert.Equal(t, "/app/installations/42/access_tokens", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "installation-token",
			"expires_at": time.Now().Add(time.Hour),
		})
	}))
	defer srv.Close()

	cache := NewAppTokenCache(srv.URL, srv.Client(), 10, time.Minute)
	app := AppInstallation{Name: "my-app", AppID: "13", PrivateKeyPEM: generateTestKeyPEM(t), InstallationID: 42}

	tok, err := cache.Get(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, "installation-token", tok.Value)

	tok2, err := cache.Get(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, tok, tok2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&mintCount), "second Get within TTU should not re-mint")
}

func TestAppTokenCacheRemintsAfterPaddedExpiry(t *testing.T) {
	var mintCount int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&mintCount, 1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "token-generation",
			"expires_at": time.Now().Add(time.Duration(n) * time.Millisecond),
		})
	}))
	defer srv.Close()

	cache := NewAppTokenCache(srv.URL, srv.Client(), 10, 0)
	app := AppInstallation{Name: "my-app", AppID: "13", PrivateKeyPEM: generateTestKeyPEM(t), InstallationID: 42}

	_, err := cache.Get(context.Background(), app)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = cache.Get(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&mintCount), "expired token should be re-minted")
}

func TestAppTokenCacheMintFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cache := NewAppTokenCache(srv.URL, srv.Client(), 10, time.Minute)
	app := AppInstallation{Name: "my-app", AppID: "13", PrivateKeyPEM: generateTestKeyPEM(t), InstallationID: 42}

	_, err := cache.Get(context.Background(), app)
	assert.Error(t, err)
}
