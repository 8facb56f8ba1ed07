package tokenService_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gridd360-manager/internal/model/token"
	"gridd360-manager/internal/repository/tokenRepo"
	"gridd360-manager/internal/repository/verifierRepo"
	"gridd360-manager/internal/service/tokenService"
	"gridd360-manager/internal/storage/filekv"
)

type backendCall struct {
	Action       string `json:"action"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
	RefreshToken string `json:"refresh_token"`
}

// fakeBackend is the trusted token-exchange intermediary.
type fakeBackend struct {
	server   *httptest.Server
	calls    atomic.Int64
	last     backendCall
	response map[string]any
	status   int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{status: http.StatusOK}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		if err := json.NewDecoder(r.Body).Decode(&b.last); err != nil {
			t.Errorf("bad backend request: %v", err)
		}
		w.WriteHeader(b.status)
		_ = json.NewEncoder(w).Encode(b.response)
	}))
	t.Cleanup(b.server.Close)
	return b
}

type env struct {
	svc       *tokenService.TokenService
	backend   *fakeBackend
	mr        *miniredis.Miniredis
	tokens    *tokenRepo.TokenRepo
	verifiers *verifierRepo.VerifierRepo
	cachePath string
	revokeURL string
}

func setup(t *testing.T) *env {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	backend := newFakeBackend(t)
	revoke := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(revoke.Close)

	cachePath := filepath.Join(t.TempDir(), "token-cache.json")
	local, err := filekv.New(cachePath)
	require.NoError(t, err)

	e := &env{
		backend:   backend,
		mr:        mr,
		tokens:    tokenRepo.New(cli),
		verifiers: verifierRepo.New(cli),
		cachePath: cachePath,
		revokeURL: revoke.URL,
	}
	e.svc = tokenService.New(tokenService.Config{
		ClientID:    "client-1",
		AuthURL:     "https://provider.example/o/oauth2/auth",
		RedirectURL: "http://localhost:8080/api/auth/photos/callback",
		Scopes:      []string{"photoslibrary.readonly"},
		BackendURL:  backend.server.URL,
		RevokeURL:   revoke.URL,
	}, "current", local, e.tokens, e.verifiers, nil)
	t.Cleanup(e.svc.Close)
	return e
}

func TestGetAuthorizationURL(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	raw, err := e.svc.GetAuthorizationURL(ctx, "csrf-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "csrf-1", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))

	assert.Equal(t, token.StateAuthorizing, e.svc.Session().State)

	verifier, err := e.verifiers.GetVerifier(ctx, "current")
	require.NoError(t, err)
	assert.NotEmpty(t, verifier)

	// omitted state gets a random one
	raw2, err := e.svc.GetAuthorizationURL(ctx, "")
	require.NoError(t, err)
	u2, _ := url.Parse(raw2)
	assert.NotEmpty(t, u2.Query().Get("state"))
}

func TestExchangeCodeForToken(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.svc.GetAuthorizationURL(ctx, "csrf-1")
	require.NoError(t, err)
	verifier, err := e.verifiers.GetVerifier(ctx, "current")
	require.NoError(t, err)

	e.backend.response = map[string]any{
		"access_token":  "a1",
		"refresh_token": "r1",
		"expires_in":    3600,
		"token_type":    "Bearer",
		"scope":         "photoslibrary.readonly",
	}

	before := time.Now().UnixMilli()
	tok, err := e.svc.ExchangeCodeForToken(ctx, "abc123")
	require.NoError(t, err)

	assert.Equal(t, "exchange", e.backend.last.Action)
	assert.Equal(t, "abc123", e.backend.last.Code)
	assert.Equal(t, verifier, e.backend.last.CodeVerifier)

	assert.Equal(t, "a1", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.GreaterOrEqual(t, tok.ExpiresAt, before+3600*1000)
	assert.LessOrEqual(t, tok.ExpiresAt, time.Now().UnixMilli()+3600*1000)

	assert.Equal(t, token.StateAuthenticated, e.svc.Session().State)

	// verifier is one-shot: discarded after a successful exchange
	gone, err := e.verifiers.GetVerifier(ctx, "current")
	require.NoError(t, err)
	assert.Empty(t, gone)

	// token mirrored to the remote store
	remote, err := e.tokens.GetToken(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, "a1", remote.AccessToken)
}

func TestExchangeCodeForToken_BackendError(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.svc.GetAuthorizationURL(ctx, "")
	require.NoError(t, err)

	e.backend.status = http.StatusBadRequest
	e.backend.response = map[string]any{"error": "invalid_grant"}

	_, err = e.svc.ExchangeCodeForToken(ctx, "bad-code")
	var exchangeErr *tokenService.TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, http.StatusBadRequest, exchangeErr.StatusCode)
	assert.Contains(t, exchangeErr.Payload, "invalid_grant")

	// session stays AUTHORIZING and the verifier survives for a retry
	assert.Equal(t, token.StateAuthorizing, e.svc.Session().State)
	verifier, err := e.verifiers.GetVerifier(ctx, "current")
	require.NoError(t, err)
	assert.NotEmpty(t, verifier)
}

func TestExchangeCodeForToken_ExpiredVerifierSlot(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.svc.GetAuthorizationURL(ctx, "")
	require.NoError(t, err)

	// verifier slot TTL runs out before the code comes back
	e.mr.FastForward(11 * time.Minute)

	_, err = e.svc.ExchangeCodeForToken(ctx, "abc123")
	assert.ErrorIs(t, err, tokenService.ErrAuthorizationExpired)
	assert.Equal(t, int64(0), e.backend.calls.Load())
	assert.Equal(t, token.StateAuthorizing, e.svc.Session().State)
}

func TestRefreshPreservesRefreshToken(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.svc.GetAuthorizationURL(ctx, "")
	require.NoError(t, err)
	e.backend.response = map[string]any{
		"access_token": "a1", "refresh_token": "R1", "expires_in": 3600, "token_type": "Bearer",
	}
	_, err = e.svc.ExchangeCodeForToken(ctx, "abc123")
	require.NoError(t, err)

	// refresh response omits refresh_token
	e.backend.response = map[string]any{
		"access_token": "a2", "expires_in": 3600, "token_type": "Bearer",
	}
	tok, err := e.svc.RefreshAccessToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, "refresh", e.backend.last.Action)
	assert.Equal(t, "R1", e.backend.last.RefreshToken)
	assert.Equal(t, "a2", tok.AccessToken)
	assert.Equal(t, "R1", tok.RefreshToken)
	assert.Equal(t, "R1", e.svc.CurrentToken().RefreshToken)
}

func TestRefreshAccessToken_NoRefreshToken(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.svc.RefreshAccessToken(ctx)
	assert.ErrorIs(t, err, tokenService.ErrNoRefreshToken)
}

func TestGetValidToken_InsideAndOutsideBuffer(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh token is returned without refresh", func(t *testing.T) {
		e := setup(t)
		_, err := e.svc.GetAuthorizationURL(ctx, "")
		require.NoError(t, err)
		e.backend.response = map[string]any{
			"access_token": "a1", "refresh_token": "r1", "expires_in": 600, "token_type": "Bearer",
		}
		_, err = e.svc.ExchangeCodeForToken(ctx, "code")
		require.NoError(t, err)
		callsAfterExchange := e.backend.calls.Load()

		tok, err := e.svc.GetValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a1", tok.AccessToken)
		assert.Equal(t, callsAfterExchange, e.backend.calls.Load())
	})

	t.Run("token inside the 5min buffer triggers refresh", func(t *testing.T) {
		e := setup(t)
		_, err := e.svc.GetAuthorizationURL(ctx, "")
		require.NoError(t, err)
		e.backend.response = map[string]any{
			"access_token": "a1", "refresh_token": "r1", "expires_in": 200, "token_type": "Bearer",
		}
		_, err = e.svc.ExchangeCodeForToken(ctx, "code")
		require.NoError(t, err)

		e.backend.response = map[string]any{
			"access_token": "a2", "refresh_token": "r2", "expires_in": 3600, "token_type": "Bearer",
		}
		tok, err := e.svc.GetValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a2", tok.AccessToken)
		assert.Equal(t, "refresh", e.backend.last.Action)
	})

	t.Run("expiring token without refresh token means re-auth", func(t *testing.T) {
		e := setup(t)
		_, err := e.svc.GetAuthorizationURL(ctx, "")
		require.NoError(t, err)
		e.backend.response = map[string]any{
			"access_token": "a1", "expires_in": 100, "token_type": "Bearer",
		}
		_, err = e.svc.ExchangeCodeForToken(ctx, "code")
		require.NoError(t, err)

		_, err = e.svc.GetValidToken(ctx)
		assert.ErrorIs(t, err, tokenService.ErrSessionExpired)
	})

	t.Run("no token at all", func(t *testing.T) {
		e := setup(t)
		_, err := e.svc.GetValidToken(ctx)
		assert.ErrorIs(t, err, tokenService.ErrSessionExpired)
	})
}

func TestRevokeToken(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.svc.GetAuthorizationURL(ctx, "")
	require.NoError(t, err)
	e.backend.response = map[string]any{
		"access_token": "a1", "refresh_token": "r1", "expires_in": 3600, "token_type": "Bearer",
	}
	_, err = e.svc.ExchangeCodeForToken(ctx, "abc123")
	require.NoError(t, err)

	assert.NoError(t, e.svc.RevokeToken(ctx))

	assert.Nil(t, e.svc.CurrentToken())
	assert.Equal(t, token.StateUnauthenticated, e.svc.Session().State)

	remote, err := e.tokens.GetToken(ctx, "current")
	require.NoError(t, err)
	assert.Nil(t, remote)

	_, err = e.svc.GetValidToken(ctx)
	assert.ErrorIs(t, err, tokenService.ErrSessionExpired)
}

func TestRevokeToken_ClearsStateWhenProviderUnreachable(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	_, err := e.svc.GetAuthorizationURL(ctx, "")
	require.NoError(t, err)
	e.backend.response = map[string]any{
		"access_token": "a1", "refresh_token": "r1", "expires_in": 3600, "token_type": "Bearer",
	}
	_, err = e.svc.ExchangeCodeForToken(ctx, "abc123")
	require.NoError(t, err)

	// rebuild the service against a dead revoke endpoint, reusing state via Restore
	local, err := filekv.New(e.cachePath)
	require.NoError(t, err)
	svc := tokenService.New(tokenService.Config{
		BackendURL: e.backend.server.URL,
		RevokeURL:  "http://127.0.0.1:1/revoke",
	}, "current", local, e.tokens, e.verifiers, nil)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Restore(ctx))
	require.NotNil(t, svc.CurrentToken())

	// local clear must succeed regardless of the network outcome
	assert.NoError(t, svc.RevokeToken(ctx))
	assert.Nil(t, svc.CurrentToken())
}

func TestRestore_RemoteCopyWins(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	cachePath := filepath.Join(t.TempDir(), "cache.json")
	local, err := filekv.New(cachePath)
	require.NoError(t, err)

	localTok := token.OAuthToken{AccessToken: "local", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}
	raw, _ := json.Marshal(localTok)
	require.NoError(t, local.Set(ctx, "oauth:token", string(raw), 0))

	remoteTok := &token.OAuthToken{
		AccessToken: "remote", RefreshToken: "r1",
		ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
	}
	require.NoError(t, e.tokens.SaveToken(ctx, "current", remoteTok, time.Hour))

	svc := tokenService.New(tokenService.Config{BackendURL: e.backend.server.URL},
		"current", local, e.tokens, e.verifiers, nil)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Restore(ctx))

	assert.Equal(t, "remote", svc.CurrentToken().AccessToken)
	assert.Equal(t, token.StateAuthenticated, svc.Session().State)

	// local cache was overwritten with the remote copy
	cached, found, err := local.Get(ctx, "oauth:token")
	require.NoError(t, err)
	require.True(t, found)
	var cachedTok token.OAuthToken
	require.NoError(t, json.Unmarshal([]byte(cached), &cachedTok))
	assert.Equal(t, "remote", cachedTok.AccessToken)
}

func TestRestore_FallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	cachePath := filepath.Join(t.TempDir(), "cache.json")
	local, err := filekv.New(cachePath)
	require.NoError(t, err)
	localTok := token.OAuthToken{AccessToken: "local", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}
	raw, _ := json.Marshal(localTok)
	require.NoError(t, local.Set(ctx, "oauth:token", string(raw), 0))

	svc := tokenService.New(tokenService.Config{BackendURL: e.backend.server.URL},
		"current", local, e.tokens, e.verifiers, nil)
	t.Cleanup(svc.Close)
	require.NoError(t, svc.Restore(ctx))

	assert.Equal(t, "local", svc.CurrentToken().AccessToken)
}
