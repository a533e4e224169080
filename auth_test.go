package promptops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthManager(t *testing.T, apiKey string) *AuthManager {
	t.Helper()
	auth, err := newAuthManager(apiKey, 2*time.Second, nil, noopLogger{})
	require.NoError(t, err)
	return auth
}

func TestNewAuthManagerEmptyKey(t *testing.T) {
	_, err := newAuthManager("", time.Second, nil, noopLogger{})
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestMaskKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"test-api-key-12345678", "test-api...5678"},
		{"pm_live_abcdef123456", "pm_live_...3456"},
		{"123456789012", "12345678...9012"}, // exactly 12
		{"short", "*****"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, maskKey(tc.key), "maskKey(%q)", tc.key)
	}
}

func TestMaskedAPIKey(t *testing.T) {
	auth := newTestAuthManager(t, "test-api-key-12345678")

	masked, err := auth.MaskedAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "test-api...5678", masked)

	auth.UpdateAPIKey("")
	_, err = auth.MaskedAPIKey()
	require.Error(t, err)
	assert.True(t, IsAuthentication(err))
}

func TestIsAuthenticated(t *testing.T) {
	auth := newTestAuthManager(t, "test-api-key-12345678")
	assert.True(t, auth.IsAuthenticated())

	auth.UpdateAPIKey("")
	assert.False(t, auth.IsAuthenticated())
}

func TestCredentialStoreStringNeverLeaks(t *testing.T) {
	store := newCredentialStore("super-secret-key-value")
	assert.NotContains(t, store.String(), "secret-key")

	store.set("")
	assert.Equal(t, "<unset>", store.String())
}

func TestBearerHeaderAttachedAtSendTime(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	auth := newTestAuthManager(t, "first-key-0123456789")

	get := func() {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		resp, err := auth.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	get()
	assert.Equal(t, "Bearer first-key-0123456789", gotAuth.Load())

	// Key update is visible on the very next call with no rewiring.
	auth.UpdateAPIKey("second-key-9876543210")
	get()
	assert.Equal(t, "Bearer second-key-9876543210", gotAuth.Load())
}

func TestUnauthorizedResponseBecomesAuthenticationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	auth := newTestAuthManager(t, "test-api-key-12345678")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	_, err = auth.Client().Do(req)
	require.Error(t, err)
	assert.True(t, IsAuthentication(err))
}

func TestSharedClientCarriesNoDeadline(t *testing.T) {
	auth := newTestAuthManager(t, "test-api-key-12345678")

	// Deadlines come from per-request contexts; a client-level timeout
	// would race concurrent timeout updates against in-flight requests.
	assert.Zero(t, auth.Client().Timeout)
	assert.Equal(t, 2*time.Second, auth.requestTimeout())

	auth.setTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, auth.requestTimeout())
	assert.Zero(t, auth.Client().Timeout)
}

func TestSetTimeoutConcurrentWithRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	auth := newTestAuthManager(t, "test-api-key-12345678")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			auth.setTimeout(time.Duration(i%5+1) * time.Second)
		}
	}()

	for i := 0; i < 20; i++ {
		ok, err := auth.ValidateAPIKey(context.Background(), server.URL)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	<-done
}

func TestValidateAPIKey(t *testing.T) {
	var status atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/validate", r.URL.Path)
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	auth := newTestAuthManager(t, "test-api-key-12345678")
	ctx := context.Background()

	status.Store(http.StatusOK)
	ok, err := auth.ValidateAPIKey(ctx, server.URL)
	require.NoError(t, err)
	assert.True(t, ok)

	// 401 proves the credential bad.
	status.Store(http.StatusUnauthorized)
	ok, err = auth.ValidateAPIKey(ctx, server.URL)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, IsAuthentication(err))

	// Infrastructure failure is not evidence against the credential.
	status.Store(http.StatusInternalServerError)
	ok, err = auth.ValidateAPIKey(ctx, server.URL)
	assert.False(t, ok)
	assert.NoError(t, err)

	server.Close()
	ok, err = auth.ValidateAPIKey(ctx, server.URL)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestRefreshNeverSilentlyNoOps(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	auth := newTestAuthManager(t, "test-api-key-12345678")
	ctx := context.Background()

	err := auth.Refresh(ctx, server.URL)
	require.Error(t, err)
	assert.True(t, IsAuthentication(err))

	status.Store(http.StatusOK)
	assert.NoError(t, auth.Refresh(ctx, server.URL))
}
