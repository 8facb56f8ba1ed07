// Package storage defines the key-value persistence port for the token
// lifecycle slots ("current token", "current session"). filekv implements it
// as the durable local cache; the remote side of token persistence goes
// through the redis-backed tokenRepo and verifierRepo instead.
package storage

import (
	"context"
	"time"
)

type Store interface {
	// Get returns the value for key, with found=false when the key is absent
	// or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set writes key=value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
