package duo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultshare/mfa/pkg/config"
	"github.com/vaultshare/mfa/pkg/errors"
)

func testConfig() config.DuoConfig {
	return config.DuoConfig{
		ClientID:     "DIXXXXXXXXXXXXXXXXXX",
		ClientSecret: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		APIHostname:  "api-test.duosecurity.com",
		RedirectURI:  "https://example.com/duo/callback",
	}
}

func TestHealthCheckNotConfigured(t *testing.T) {
	bridge := NewBridge(config.DuoConfig{})

	summary, err := bridge.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuoNotConfigured))
	assert.False(t, summary.IsConfigured)
	assert.False(t, summary.IsHealthy)
}

func TestHealthCheckHealthy(t *testing.T) {
	cfg := testConfig()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth/v1/health_check", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, cfg.ClientID, r.PostForm.Get("client_id"))

		// the probe must authenticate with a signed HS512 assertion
		assertion := r.PostForm.Get("client_assertion")
		require.NotEmpty(t, assertion)
		token, err := jwt.Parse(assertion, func(token *jwt.Token) (interface{}, error) {
			require.Equal(t, "HS512", token.Method.Alg())
			return []byte(cfg.ClientSecret), nil
		})
		require.NoError(t, err)
		require.True(t, token.Valid)

		w.Write([]byte(`{"stat": "OK"}`))
	}))
	defer server.Close()

	bridge := NewBridge(cfg, WithBaseURL(server.URL))

	summary, err := bridge.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.IsConfigured)
	assert.True(t, summary.IsHealthy)
}

func TestHealthCheckFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"fail stat", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"stat": "FAIL"}`))
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			bridge := NewBridge(testConfig(), WithBaseURL(server.URL))

			summary, err := bridge.HealthCheck(context.Background())
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeDuoUnreachable))
			assert.True(t, summary.IsConfigured)
			assert.False(t, summary.IsHealthy)
		})
	}
}

func TestHealthCheckUnreachableHost(t *testing.T) {
	bridge := NewBridge(testConfig(),
		WithBaseURL("http://127.0.0.1:1"),
		WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))

	_, err := bridge.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuoUnreachable))
}

func TestBuildRedirectRequest(t *testing.T) {
	cfg := testConfig()
	bridge := NewBridge(cfg)

	spec, err := bridge.BuildRedirectRequest(context.Background(), "alice")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(spec.AuthorizeURL, "https://api-test.duosecurity.com/oauth/v1/authorize?"))
	assert.Contains(t, spec.AuthorizeURL, "client_id="+cfg.ClientID)
	assert.Len(t, spec.State, 64)
	assert.Equal(t, cfg.ClientID, spec.ClientID)

	token, err := jwt.Parse(spec.RequestJWT, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.ClientSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "alice", claims["duo_uname"])
	assert.Equal(t, spec.State, claims["state"])
	assert.Equal(t, cfg.RedirectURI, claims["redirect_uri"])

	// distinct states per redirect
	other, err := bridge.BuildRedirectRequest(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEqual(t, spec.State, other.State)
}

func TestBuildRedirectRequestRequiresConfig(t *testing.T) {
	bridge := NewBridge(config.DuoConfig{})

	_, err := bridge.BuildRedirectRequest(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuoNotConfigured))
}

func TestValidateCallbackSingleUse(t *testing.T) {
	ctx := context.Background()
	bridge := NewBridge(testConfig())

	spec, err := bridge.BuildRedirectRequest(ctx, "alice")
	require.NoError(t, err)

	username, err := bridge.ValidateCallback(ctx, spec.State, "assertion-token")
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	// the state is consumed; replays are fatal
	_, err = bridge.ValidateCallback(ctx, spec.State, "assertion-token")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStateMismatch))
}

func TestValidateCallbackUnknownState(t *testing.T) {
	bridge := NewBridge(testConfig())

	_, err := bridge.ValidateCallback(context.Background(), "never-issued", "assertion")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStateMismatch))

	_, err = bridge.ValidateCallback(context.Background(), "", "assertion")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStateMismatch))
}

func TestValidateCallbackExpiredState(t *testing.T) {
	ctx := context.Background()
	bridge := NewBridge(testConfig(), WithStateLifetime(time.Nanosecond))

	spec, err := bridge.BuildRedirectRequest(ctx, "alice")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = bridge.ValidateCallback(ctx, spec.State, "assertion")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStateMismatch))
}

func TestValidateCallbackEmptyAssertion(t *testing.T) {
	ctx := context.Background()
	bridge := NewBridge(testConfig())

	spec, err := bridge.BuildRedirectRequest(ctx, "alice")
	require.NoError(t, err)

	_, err = bridge.ValidateCallback(ctx, spec.State, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidCode))

	// the failed attempt still consumed the state
	_, err = bridge.ValidateCallback(ctx, spec.State, "assertion")
	assert.True(t, errors.IsCode(err, errors.ErrCodeStateMismatch))
}
