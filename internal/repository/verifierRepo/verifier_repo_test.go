package verifierRepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"gridd360-manager/internal/repository/verifierRepo"
)

func TestVerifierRepo(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	repo := verifierRepo.New(db)

	t.Run("SaveVerifier", func(t *testing.T) {
		mock.ExpectSet("oauth:verifier:current", "v1", 10*time.Minute).SetVal("OK")
		err := repo.SaveVerifier(ctx, "current", "v1", 10*time.Minute)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetVerifier", func(t *testing.T) {
		mock.ExpectGet("oauth:verifier:current").SetVal("v1")
		verifier, err := repo.GetVerifier(ctx, "current")
		assert.NoError(t, err)
		assert.Equal(t, "v1", verifier)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GetVerifier (missing)", func(t *testing.T) {
		mock.ExpectGet("oauth:verifier:current").RedisNil()
		verifier, err := repo.GetVerifier(ctx, "current")
		assert.NoError(t, err)
		assert.Empty(t, verifier)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeleteVerifier", func(t *testing.T) {
		mock.ExpectDel("oauth:verifier:current").SetVal(1)
		err := repo.DeleteVerifier(ctx, "current")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
