package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"boardpilot/internal/domain"
)

// HMACVerifier validates actor tokens of the form
// "<actorId>.<expiryUnix>.<hexSignature>" where the signature is
// HMAC-SHA256 over "<actorId>.<expiryUnix>" with a shared secret. The
// whiteboard frontend's session layer mints these tokens.
type HMACVerifier struct {
	secret []byte
	now    func() time.Time
}

var _ domain.IdentityVerifier = (*HMACVerifier)(nil)

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), now: time.Now}
}

// Verify returns the actor id carried by a valid, unexpired token.
// Every failure maps to ErrAuthInvalid without detail so callers cannot
// distinguish a bad signature from an expired token.
func (v *HMACVerifier) Verify(ctx context.Context, token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", domain.ErrAuthInvalid
	}
	actorID, expiryRaw, sigHex := parts[0], parts[1], parts[2]

	expiry, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil || v.now().Unix() >= expiry {
		return "", domain.ErrAuthInvalid
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", domain.ErrAuthInvalid
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s", actorID, expiryRaw)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return "", domain.ErrAuthInvalid
	}

	return actorID, nil
}

// SignToken mints a token for actorID valid for ttl. Used by local tooling
// and tests.
func (v *HMACVerifier) SignToken(actorID string, ttl time.Duration) string {
	expiry := strconv.FormatInt(v.now().Add(ttl).Unix(), 10)
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s.%s", actorID, expiry)
	return fmt.Sprintf("%s.%s.%s", actorID, expiry, hex.EncodeToString(mac.Sum(nil)))
}
