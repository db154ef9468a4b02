package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool. Arguments is the
// raw JSON payload as returned by the model and must be treated as untrusted
// until schema-validated.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// BoardToolCall is a validated tool invocation headed for the executor:
// a recognized tool name plus its decoded argument map.
type BoardToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ExecuteResult is the outcome of executing a batch of board tool calls.
// BoardState is populated only when getBoardState was among the calls.
type ExecuteResult struct {
	Executed         int           `json:"executed"`
	CreatedObjectIDs []string      `json:"createdObjectIds"`
	BoardState       []BoardObject `json:"boardState,omitempty"`
}

// BoardToolExecutor validates and atomically applies board mutations.
// A failed execution stages nothing: either every call in the batch commits
// or none do.
type BoardToolExecutor interface {
	Execute(ctx context.Context, boardID string, calls []BoardToolCall) (*ExecuteResult, error)
}
