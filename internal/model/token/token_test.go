package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gridd360-manager/internal/model/token"
)

func TestExpiresWithin_BufferBoundary(t *testing.T) {
	buffer := 5 * time.Minute
	expiresAt := time.Now().Add(time.Hour)
	tok := &token.OAuthToken{ExpiresAt: expiresAt.UnixMilli()}

	// exactly at expires_at - 5min the token counts as expiring
	atBoundary := expiresAt.Add(-buffer)
	assert.True(t, tok.ExpiresWithin(atBoundary, buffer))

	// one millisecond earlier it does not
	justBefore := atBoundary.Add(-time.Millisecond)
	assert.False(t, tok.ExpiresWithin(justBefore, buffer))

	// past expiry always counts
	assert.True(t, tok.ExpiresWithin(expiresAt.Add(time.Second), buffer))
}
