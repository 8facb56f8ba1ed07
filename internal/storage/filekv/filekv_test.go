package filekv_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gridd360-manager/internal/storage/filekv"
)

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := filekv.New(path)
	assert.NoError(t, err)

	_, found, err := s.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, s.Set(ctx, "token", `{"access_token":"a1"}`, 0))

	v, found, err := s.Get(ctx, "token")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"access_token":"a1"}`, v)

	assert.NoError(t, s.Delete(ctx, "token"))
	_, found, _ = s.Get(ctx, "token")
	assert.False(t, found)

	// deleting a missing key is a no-op
	assert.NoError(t, s.Delete(ctx, "token"))
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s1, err := filekv.New(path)
	assert.NoError(t, err)
	assert.NoError(t, s1.Set(ctx, "session", "AUTHENTICATED", 0))

	s2, err := filekv.New(path)
	assert.NoError(t, err)
	v, found, err := s2.Get(ctx, "session")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "AUTHENTICATED", v)
}

func TestStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	s, err := filekv.New(path)
	assert.NoError(t, err)

	assert.NoError(t, s.Set(ctx, "verifier", "v1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, found, err := s.Get(ctx, "verifier")
	assert.NoError(t, err)
	assert.False(t, found)
}
