package token

import "time"

// OAuthToken is the current token pair for the photo-library provider.
// ExpiresAt is absolute epoch milliseconds computed when the token is stored.
type OAuthToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// ExpiresWithin reports whether the token is already inside the given buffer
// before its expiry (or past it).
func (t *OAuthToken) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	return now.UnixMilli() >= t.ExpiresAt-buffer.Milliseconds()
}

type SessionState string

const (
	StateUnauthenticated SessionState = "UNAUTHENTICATED"
	StateAuthorizing     SessionState = "AUTHORIZING"
	StateAuthenticated   SessionState = "AUTHENTICATED"
	StateRefreshing      SessionState = "REFRESHING"
)

// Session tracks where the provider connection sits in the authorization
// state machine.
type Session struct {
	State     SessionState `json:"state"`
	CSRFState string       `json:"csrf_state,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}
