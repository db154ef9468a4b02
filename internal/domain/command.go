package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Lifecycle states for an AICommand record. A record is created running and
// transitions exactly once to completed or failed; terminal records are
// immutable.
const (
	CommandRunning   = "running"
	CommandCompleted = "completed"
	CommandFailed    = "failed"
)

// API-facing status values (lifecycle states mapped for clients).
const (
	APIStatusPending = "pending"
	APIStatusSuccess = "success"
	APIStatusError   = "error"
)

// AICommand is the durable lifecycle record for one natural-language command.
// The record id is derived, not random: retries with the same inputs land on
// the same document.
type AICommand struct {
	ID              string    `json:"id"`
	BoardID         string    `json:"boardId"`
	Prompt          string    `json:"prompt"`
	Actor           string    `json:"actor"`
	Status          string    `json:"status"`
	Summary         string    `json:"summary"`
	Error           string    `json:"error,omitempty"`
	IdempotencyKey  string    `json:"idempotencyKey"`
	ClientRequestID string    `json:"clientRequestId"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DeriveCommandID computes the deterministic command id: a sha256 digest of
// the ordered inputs, truncated to 32 hex characters. Identical inputs always
// map to the same id; changing any one input changes it.
func DeriveCommandID(boardID, actor, clientRequestID, idempotencyKey string) string {
	digest := sha256.Sum256([]byte(strings.Join(
		[]string{boardID, actor, clientRequestID, idempotencyKey}, "|",
	)))
	return hex.EncodeToString(digest[:])[:32]
}

// APIStatus maps the lifecycle state to the client-facing status value.
func APIStatus(lifecycle string) string {
	switch lifecycle {
	case CommandRunning:
		return APIStatusPending
	case CommandCompleted:
		return APIStatusSuccess
	default:
		return APIStatusError
	}
}
