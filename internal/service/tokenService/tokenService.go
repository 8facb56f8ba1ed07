package tokenService

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gridd360-manager/internal/model/token"
	"gridd360-manager/internal/pkce"
	"gridd360-manager/internal/storage"
)

const (
	// refresh is triggered once the token gets within this buffer of expiry
	expiryBuffer = 5 * time.Minute
	verifierTTL  = 10 * time.Minute
	// remote mirror lives as long as a typical provider refresh token
	remoteTokenTTL = 30 * 24 * time.Hour

	localTokenKey   = "oauth:token"
	localSessionKey = "oauth:session"
)

var (
	ErrNoRefreshToken       = errors.New("no refresh token available")
	ErrSessionExpired       = errors.New("session expired, re-authentication required")
	ErrAuthorizationExpired = errors.New("authorization attempt expired, restart the flow")
)

// TokenExchangeError carries the backend intermediary's error payload for a
// failed exchange or refresh.
type TokenExchangeError struct {
	StatusCode int
	Payload    string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Payload)
}

type Config struct {
	ClientID    string
	AuthURL     string
	RedirectURL string
	Scopes      []string
	// BackendURL is the trusted intermediary holding the client secret;
	// exchange and refresh go through it, never straight to the provider.
	BackendURL string
	RevokeURL  string
}

// VerifierStore is the short-lived slot for the pending PKCE verifier.
type VerifierStore interface {
	SaveVerifier(ctx context.Context, sessionID, verifier string, ttl time.Duration) error
	GetVerifier(ctx context.Context, sessionID string) (string, error)
	DeleteVerifier(ctx context.Context, sessionID string) error
}

// TokenStore is the longer-lived remote mirror of the current token.
type TokenStore interface {
	SaveToken(ctx context.Context, sessionID string, tok *token.OAuthToken, ttl time.Duration) error
	GetToken(ctx context.Context, sessionID string) (*token.OAuthToken, error)
	DeleteToken(ctx context.Context, sessionID string) error
}

// TokenService owns the provider authorization handshake and the lifecycle of
// the resulting token pair: persistence, proactive refresh, expiry-driven
// re-authentication. One current token per session; refreshes supersede it.
type TokenService struct {
	mu        sync.Mutex
	cfg       Config
	oauth     *oauth2.Config
	client    *http.Client
	sessionID string

	local     storage.Store
	remote    TokenStore
	verifiers VerifierStore

	current        *token.OAuthToken
	session        token.Session
	refreshTimer   *time.Timer
	inflight       chan struct{}
	lastRefreshErr error

	log *zap.Logger
}

func New(cfg Config, sessionID string, local storage.Store, remote TokenStore, verifiers VerifierStore, log *zap.Logger) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenService{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint:    oauth2.Endpoint{AuthURL: cfg.AuthURL},
		},
		client:    &http.Client{Timeout: 30 * time.Second},
		sessionID: sessionID,
		local:     local,
		remote:    remote,
		verifiers: verifiers,
		session:   token.Session{State: token.StateUnauthenticated},
		log:       log,
	}
}

// Restore loads persisted token state. The remote copy wins over the local
// cache; a valid restored token re-arms the refresh timer.
func (s *TokenService) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tok *token.OAuthToken
	if s.remote != nil {
		remoteTok, err := s.remote.GetToken(ctx, s.sessionID)
		if err != nil {
			s.log.Warn("failed to read remote token copy", zap.Error(err))
		} else {
			tok = remoteTok
		}
	}
	if tok == nil && s.local != nil {
		raw, found, err := s.local.Get(ctx, localTokenKey)
		if err != nil {
			return fmt.Errorf("failed to read local token cache: %w", err)
		}
		if found {
			var cached token.OAuthToken
			if err := json.Unmarshal([]byte(raw), &cached); err != nil {
				return fmt.Errorf("failed to decode local token cache: %w", err)
			}
			tok = &cached
		}
	}
	if tok == nil {
		return nil
	}

	s.current = tok
	s.session = token.Session{State: token.StateAuthenticated, UpdatedAt: time.Now()}
	s.persistLocked(ctx)
	s.scheduleRefreshLocked()
	return nil
}

// GetAuthorizationURL issues a PKCE verifier, stores it in the short-lived
// slot, and builds the provider authorization URL. A random CSRF state is
// generated when the caller does not supply one.
func (s *TokenService) GetAuthorizationURL(ctx context.Context, state string) (string, error) {
	verifier, err := pkce.NewVerifier()
	if err != nil {
		return "", err
	}
	if state == "" {
		state, err = pkce.State()
		if err != nil {
			return "", err
		}
	}
	if err := s.verifiers.SaveVerifier(ctx, s.sessionID, verifier, verifierTTL); err != nil {
		return "", fmt.Errorf("failed to store code verifier: %w", err)
	}

	authURL := s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	s.mu.Lock()
	s.session = token.Session{State: token.StateAuthorizing, CSRFState: state, UpdatedAt: time.Now()}
	s.persistSessionLocked(ctx)
	s.mu.Unlock()

	return authURL, nil
}

// ExchangeCodeForToken trades the authorization code plus the stored verifier
// for a token pair. The verifier is discarded only on success, so a failed
// exchange can be retried with the same authorization attempt.
func (s *TokenService) ExchangeCodeForToken(ctx context.Context, code string) (*token.OAuthToken, error) {
	verifier, err := s.verifiers.GetVerifier(ctx, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load code verifier: %w", err)
	}
	if verifier == "" {
		// the TTL on the verifier slot ran out before the code came back
		return nil, ErrAuthorizationExpired
	}

	tok, err := s.callBackend(ctx, map[string]string{
		"action":        "exchange",
		"code":          code,
		"code_verifier": verifier,
		"redirect_uri":  s.cfg.RedirectURL,
	})
	if err != nil {
		// session stays AUTHORIZING; the caller may retry or restart
		return nil, err
	}

	if err := s.verifiers.DeleteVerifier(ctx, s.sessionID); err != nil {
		s.log.Warn("failed to discard code verifier", zap.Error(err))
	}

	s.mu.Lock()
	s.storeTokenLocked(ctx, tok)
	s.session = token.Session{State: token.StateAuthenticated, UpdatedAt: time.Now()}
	s.persistSessionLocked(ctx)
	s.mu.Unlock()

	return tok, nil
}

// RefreshAccessToken exchanges the held refresh token for a fresh pair.
// Concurrent callers (including the scheduled timer) share one in-flight
// refresh instead of racing duplicate requests. A response without a new
// refresh_token keeps the previous one.
func (s *TokenService) RefreshAccessToken(ctx context.Context) (*token.OAuthToken, error) {
	s.mu.Lock()
	if s.inflight != nil {
		ch := s.inflight
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
		tok, err := s.current, s.lastRefreshErr
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return tok, nil
	}
	if s.current == nil || s.current.RefreshToken == "" {
		s.mu.Unlock()
		return nil, ErrNoRefreshToken
	}
	refreshToken := s.current.RefreshToken
	ch := make(chan struct{})
	s.inflight = ch
	s.session.State = token.StateRefreshing
	s.mu.Unlock()

	tok, err := s.callBackend(ctx, map[string]string{
		"action":        "refresh",
		"refresh_token": refreshToken,
	})

	s.mu.Lock()
	defer func() {
		s.inflight = nil
		close(ch)
		s.mu.Unlock()
	}()

	s.lastRefreshErr = err
	if err != nil {
		// state is left to the caller: a failed refresh does not clear the
		// session here
		s.session.State = token.StateAuthenticated
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	s.storeTokenLocked(ctx, tok)
	s.session = token.Session{State: token.StateAuthenticated, UpdatedAt: time.Now()}
	s.persistSessionLocked(ctx)
	return tok, nil
}

// GetValidToken returns the current token, refreshing transparently once it
// is within the expiry buffer. Without a refresh token the only way forward
// is re-authentication.
func (s *TokenService) GetValidToken(ctx context.Context) (*token.OAuthToken, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil, ErrSessionExpired
	}
	if !s.current.ExpiresWithin(time.Now(), expiryBuffer) {
		tok := *s.current
		s.mu.Unlock()
		return &tok, nil
	}
	if s.current.RefreshToken == "" {
		s.mu.Unlock()
		return nil, ErrSessionExpired
	}
	s.mu.Unlock()

	tok, err := s.RefreshAccessToken(ctx)
	if err != nil {
		if errors.Is(err, ErrNoRefreshToken) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	return tok, nil
}

// RevokeToken tells the provider to revoke the access token, best effort,
// then unconditionally clears local state and cancels the pending refresh.
func (s *TokenService) RevokeToken(ctx context.Context) error {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current != nil && s.cfg.RevokeURL != "" {
		form := url.Values{"token": {current.AccessToken}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RevokeURL,
			strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := s.client.Do(req)
			if err != nil {
				s.log.Warn("provider revoke call failed", zap.Error(err))
			} else {
				resp.Body.Close()
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.current = nil
	s.session = token.Session{State: token.StateUnauthenticated, UpdatedAt: time.Now()}

	if s.local != nil {
		if err := s.local.Delete(ctx, localTokenKey); err != nil {
			s.log.Warn("failed to clear local token cache", zap.Error(err))
		}
	}
	if s.remote != nil {
		if err := s.remote.DeleteToken(ctx, s.sessionID); err != nil {
			s.log.Warn("failed to clear remote token copy", zap.Error(err))
		}
	}
	s.persistSessionLocked(ctx)
	return nil
}

// Session returns the current state machine position.
func (s *TokenService) Session() token.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// CurrentToken returns a copy of the stored token without validity checks.
func (s *TokenService) CurrentToken() *token.OAuthToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	tok := *s.current
	return &tok
}

func (s *TokenService) callBackend(ctx context.Context, payload map[string]string) (*token.OAuthToken, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BackendURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Payload: string(raw)}
	}

	var tok token.OAuthToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	tok.ExpiresAt = time.Now().UnixMilli() + tok.ExpiresIn*1000
	return &tok, nil
}

// storeTokenLocked supersedes the current token, persists both copies and
// re-arms the refresh timer.
func (s *TokenService) storeTokenLocked(ctx context.Context, tok *token.OAuthToken) {
	s.current = tok
	s.persistLocked(ctx)
	s.scheduleRefreshLocked()
}

func (s *TokenService) persistLocked(ctx context.Context) {
	if s.current == nil {
		return
	}
	if s.local != nil {
		raw, err := json.Marshal(s.current)
		if err == nil {
			err = s.local.Set(ctx, localTokenKey, string(raw), 0)
		}
		if err != nil {
			s.log.Warn("failed to write local token cache", zap.Error(err))
		}
	}
	if s.remote != nil {
		if err := s.remote.SaveToken(ctx, s.sessionID, s.current, remoteTokenTTL); err != nil {
			s.log.Warn("failed to write remote token copy", zap.Error(err))
		}
	}
}

func (s *TokenService) persistSessionLocked(ctx context.Context) {
	if s.local == nil {
		return
	}
	raw, err := json.Marshal(s.session)
	if err == nil {
		err = s.local.Set(ctx, localSessionKey, string(raw), 0)
	}
	if err != nil {
		s.log.Warn("failed to write session state", zap.Error(err))
	}
}

// scheduleRefreshLocked arms the single refresh timer for
// expires_at - now - buffer. Re-arming cancels the previous timer; a
// non-positive delay leaves refresh to GetValidToken.
func (s *TokenService) scheduleRefreshLocked() {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	if s.current == nil || s.current.RefreshToken == "" {
		return
	}
	delay := time.Until(time.UnixMilli(s.current.ExpiresAt)) - expiryBuffer
	if delay <= 0 {
		return
	}
	s.refreshTimer = time.AfterFunc(delay, func() {
		if _, err := s.RefreshAccessToken(context.Background()); err != nil {
			s.log.Warn("scheduled token refresh failed", zap.Error(err))
		}
	})
}

// Close cancels the refresh timer without touching persisted state.
func (s *TokenService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
}
