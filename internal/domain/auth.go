package domain

import "context"

// IdentityVerifier exchanges a bearer credential for a stable actor id.
type IdentityVerifier interface {
	// Verify returns the actor uid for a valid credential, or ErrAuthInvalid.
	Verify(ctx context.Context, token string) (string, error)
}
