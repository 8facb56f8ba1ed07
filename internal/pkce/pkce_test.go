package pkce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gridd360-manager/internal/pkce"
)

func TestNewVerifier(t *testing.T) {
	v1, err := pkce.NewVerifier()
	assert.NoError(t, err)
	assert.Len(t, v1, 43)

	v2, err := pkce.NewVerifier()
	assert.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestChallenge_RFC7636Vector(t *testing.T) {
	// Appendix B of RFC 7636
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cc", pkce.Challenge(verifier))
}

func TestState(t *testing.T) {
	s1, err := pkce.State()
	assert.NoError(t, err)
	assert.NotEmpty(t, s1)

	s2, err := pkce.State()
	assert.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}
