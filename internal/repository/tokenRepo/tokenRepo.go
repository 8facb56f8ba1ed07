package tokenRepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gridd360-manager/internal/model/token"
)

// TokenRepo mirrors the current provider token to redis so another
// session/device can pick it up without re-authorizing. The remote copy is
// the source of truth on startup.
type TokenRepo struct {
	Client *redis.Client
}

func New(client *redis.Client) *TokenRepo {
	return &TokenRepo{Client: client}
}

func (r *TokenRepo) buildKey(sessionID string) string {
	return fmt.Sprintf("oauth:token:%s", sessionID)
}

func (r *TokenRepo) SaveToken(ctx context.Context, sessionID string, tok *token.OAuthToken, ttl time.Duration) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return r.Client.Set(ctx, r.buildKey(sessionID), string(raw), ttl).Err()
}

func (r *TokenRepo) GetToken(ctx context.Context, sessionID string) (*token.OAuthToken, error) {
	raw, err := r.Client.Get(ctx, r.buildKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok token.OAuthToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &tok, nil
}

func (r *TokenRepo) DeleteToken(ctx context.Context, sessionID string) error {
	return r.Client.Del(ctx, r.buildKey(sessionID)).Err()
}
