package verifierRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// VerifierRepo holds the pending PKCE code verifier for an authorization
// attempt. The slot is short-lived: it is written when the authorization URL
// is issued and deleted once the code exchange succeeds.
type VerifierRepo struct {
	Client *redis.Client
}

func New(client *redis.Client) *VerifierRepo {
	return &VerifierRepo{Client: client}
}

func (r *VerifierRepo) buildKey(sessionID string) string {
	return fmt.Sprintf("oauth:verifier:%s", sessionID)
}

func (r *VerifierRepo) SaveVerifier(ctx context.Context, sessionID, verifier string, ttl time.Duration) error {
	return r.Client.Set(ctx, r.buildKey(sessionID), verifier, ttl).Err()
}

// GetVerifier returns the pending verifier, or "" if none is stored.
func (r *VerifierRepo) GetVerifier(ctx context.Context, sessionID string) (string, error) {
	verifier, err := r.Client.Get(ctx, r.buildKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return verifier, nil
}

func (r *VerifierRepo) DeleteVerifier(ctx context.Context, sessionID string) error {
	return r.Client.Del(ctx, r.buildKey(sessionID)).Err()
}
