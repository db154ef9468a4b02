package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardpilot/internal/domain"
)

func TestHMACVerifierRoundTrip(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	token := v.SignToken("user-1", time.Hour)

	actor, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", actor)
}

func TestHMACVerifierRejectsTamperedToken(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	token := v.SignToken("user-1", time.Hour)
	tampered := strings.Replace(token, "user-1", "user-2", 1)

	_, err := v.Verify(context.Background(), tampered)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestHMACVerifierRejectsWrongSecret(t *testing.T) {
	minter := NewHMACVerifier("secret-a")
	verifier := NewHMACVerifier("secret-b")

	_, err := verifier.Verify(context.Background(), minter.SignToken("user-1", time.Hour))
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestHMACVerifierRejectsExpiredToken(t *testing.T) {
	v := NewHMACVerifier("test-secret")
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token := v.SignToken("user-1", time.Hour)
	v.now = time.Now

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestHMACVerifierRejectsMalformedTokens(t *testing.T) {
	v := NewHMACVerifier("test-secret")

	for _, token := range []string{"", "user-1", "user-1.123", "user-1.notanumber.abcd", ".123.abcd", "user-1.123.zz"} {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrAuthInvalid, "token %q", token)
	}
}
