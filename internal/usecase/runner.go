package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/tracer"
)

// defaultSystemPrompt steers the model toward tool use only for clear board
// actions and sensible defaults instead of clarifying questions.
const defaultSystemPrompt = `You are an AI board assistant. Only use tools when the user clearly asks for a board action (e.g. add a sticky note, create a frame, move something, edit text, change color). Do not use tools for random text, gibberish, greetings, or unclear requests. Reply briefly in plain text and do not call any tools. When in doubt, respond with text only.
When the user asks to add a sticky note (or notes) without saying content or position, use sensible defaults: e.g. text "New note" (or a short phrase from their message), position e.g. (100, 100) or offset from existing objects. Do not ask the user to provide content and position. Prefer acting with these defaults.`

const failedSummary = "Failed to execute AI command."

// ToolCatalog is the tool surface the runner exposes to the model.
type ToolCatalog interface {
	Known(name string) bool
	Names() []string
	Schemas() []domain.ToolSchema
}

// RunResult is the terminal outcome of one agent run. Status is always
// completed or failed; Err carries the failure reason for failed runs.
type RunResult struct {
	Status   string
	Summary  string
	Executed int
	Err      string
}

// AgentRunner drives the bounded tool-calling loop: send the prompt and
// board state to the model, execute any tool calls it returns, feed the
// results back, and stop when the model answers in plain text or the
// iteration limit is hit.
type AgentRunner struct {
	provider      domain.LLMProvider
	executor      domain.BoardToolExecutor
	boards        domain.BoardStore
	catalog       ToolCatalog
	maxIterations int
	systemPrompt  string
	logger        *slog.Logger
}

func NewAgentRunner(
	provider domain.LLMProvider,
	executor domain.BoardToolExecutor,
	boards domain.BoardStore,
	catalog ToolCatalog,
	maxIterations int,
	systemPrompt string,
	logger *slog.Logger,
) *AgentRunner {
	if maxIterations < 1 {
		maxIterations = 5
	}
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &AgentRunner{
		provider:      provider,
		executor:      executor,
		boards:        boards,
		catalog:       catalog,
		maxIterations: maxIterations,
		systemPrompt:  systemPrompt,
		logger:        logger,
	}
}

// userTurn is the structured first user message: the prompt plus enough board
// context for the model to reference existing objects by id.
type userTurn struct {
	Prompt     string               `json:"prompt"`
	BoardID    string               `json:"boardId"`
	BoardState []domain.BoardObject `json:"boardState"`
	ToolSchema []string             `json:"toolSchema"`
}

func (r *AgentRunner) buildMessages(ctx context.Context, boardID, prompt string) ([]domain.Message, error) {
	boardState, err := r.boards.ListObjects(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board objects: %w", err)
	}
	if boardState == nil {
		boardState = []domain.BoardObject{}
	}

	turn, err := json.Marshal(userTurn{
		Prompt:     prompt,
		BoardID:    boardID,
		BoardState: boardState,
		ToolSchema: r.catalog.Names(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal user turn: %w", err)
	}

	return []domain.Message{
		{Role: domain.RoleSystem, Content: r.systemPrompt},
		{Role: domain.RoleUser, Content: string(turn)},
	}, nil
}

// Run executes the agent loop for one command. Tool-level failures come back
// as a failed RunResult; a non-nil error means an infrastructure fault
// (provider unreachable, store down) the caller reports as internal.
func (r *AgentRunner) Run(ctx context.Context, boardID, prompt string) (*RunResult, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.run",
		trace.WithAttributes(tracer.StringAttr("board.id", boardID)),
	)
	defer span.End()

	messages, err := r.buildMessages(ctx, boardID, prompt)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tools := r.catalog.Schemas()

	executed := 0
	var steps []string

	for iteration := 0; iteration < r.maxIterations; iteration++ {
		resp, err := r.provider.Chat(ctx, domain.ChatRequest{
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			tracer.RecordError(span, err)
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderError, err)
		}

		toolCalls := resp.Message.ToolCalls
		if len(toolCalls) == 0 {
			summary := strings.TrimSpace(resp.Message.Content)
			if summary == "" {
				if len(steps) > 0 {
					summary = strings.Join(steps, "; ")
				} else {
					summary = fmt.Sprintf("Executed %d tool call(s).", executed)
				}
			}
			tracer.SetOK(span)
			r.logger.Debug("agent run completed",
				"board_id", boardID,
				"iterations", iteration+1,
				"executed", executed)
			return &RunResult{
				Status:   domain.CommandCompleted,
				Summary:  summary,
				Executed: executed,
			}, nil
		}

		toolResults := make([]domain.Message, 0, len(toolCalls))

		for _, call := range toolCalls {
			if call.Name == "" || !r.catalog.Known(call.Name) {
				return r.failed(span, executed, fmt.Sprintf("Unknown tool: %s", call.Name)), nil
			}

			args := map[string]any{}
			if len(call.Arguments) > 0 {
				if err := json.Unmarshal(call.Arguments, &args); err != nil {
					return r.failed(span, executed, fmt.Sprintf("Invalid tool arguments for %s.", call.Name)), nil
				}
			}

			result, err := r.executor.Execute(ctx, boardID, []domain.BoardToolCall{
				{Tool: call.Name, Args: args},
			})
			if err != nil {
				return r.failed(span, executed, failureMessage(err)), nil
			}

			executed++
			steps = append(steps, describeStep(call.Name, args))

			content, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("marshal tool result: %w", err)
			}
			toolResults = append(toolResults, domain.Message{
				Role:      domain.RoleTool,
				Content:   string(content),
				ToolCalls: []domain.ToolCall{{ID: call.ID}},
			})
		}

		messages = append(messages, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   resp.Message.Content,
			ToolCalls: toolCalls,
		})
		messages = append(messages, toolResults...)
	}

	return r.failed(span, executed, "Tool-calling loop exceeded iteration limit."), nil
}

func (r *AgentRunner) failed(span trace.Span, executed int, reason string) *RunResult {
	tracer.RecordError(span, fmt.Errorf("%s", reason))
	return &RunResult{
		Status:   domain.CommandFailed,
		Summary:  failedSummary,
		Executed: executed,
		Err:      reason,
	}
}

// failureMessage extracts the user-facing message from executor errors.
func failureMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	return err.Error()
}

// describeStep renders a short human summary for one executed tool call.
func describeStep(toolName string, args map[string]any) string {
	switch toolName {
	case "createStickyNote":
		return fmt.Sprintf("Created sticky note %q", truncate(stringArg(args, "text"), 30))
	case "createShape":
		shape := stringArg(args, "type")
		if shape == "" {
			shape = "shape"
		}
		return "Created " + shape
	case "createFrame":
		return fmt.Sprintf("Created frame %q", truncate(stringArg(args, "title"), 30))
	case "createConnector":
		return "Created connector"
	case "moveObject":
		return "Moved object"
	case "resizeObject":
		return "Resized object"
	case "updateText":
		return "Updated text"
	case "changeColor":
		return "Changed color"
	case "createSWOTTemplate":
		return "Created SWOT template"
	case "createUserJourneyTemplate":
		return "Created user journey template"
	case "createRetroTemplate":
		return "Created retro template"
	case "arrangeInGrid":
		ids, _ := args["objectIds"].([]any)
		return fmt.Sprintf("Arranged %d object(s) in grid", len(ids))
	case "distributeEvenly":
		return fmt.Sprintf("Distributed evenly (%s)", stringArg(args, "direction"))
	case "getBoardState":
		return "Read board state"
	}
	return toolName
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
