package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/config"
)

// SubmitInput is one natural-language command request after transport
// decoding. Token is the raw bearer token; the service verifies it.
type SubmitInput struct {
	Token           string
	BoardID         string
	Prompt          string
	ClientRequestID string
	IdempotencyKey  string
}

// SubmitResult is the terminal outcome of a command request that reached the
// lifecycle store. Pre-state rejections (disabled, auth, validation, rate
// limit) are returned as errors instead.
type SubmitResult struct {
	CommandID string
	Status    string // pending, success, or error
	Summary   string
	// Replayed is true when an existing record for the same derived id was
	// returned without running the agent again.
	Replayed bool
	// Internal is true when an infrastructure fault interrupted the run.
	Internal bool
	// FailureCode and FailureMessage are set when Status is error.
	FailureCode    domain.ErrorCode
	FailureMessage string
}

// RateLimitError is returned when a per-user or per-board threshold denies a
// request. It unwraps to ErrRateLimit so generic code classification works.
type RateLimitError struct {
	Scope             string // "user" or "board"
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	if e.Scope == "board" {
		return "Too many AI commands on this board. Please try again later."
	}
	return "Too many AI commands. Please try again later."
}

func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimit }

// CommandRunner is the agent loop as seen by the service.
type CommandRunner interface {
	Run(ctx context.Context, boardID, prompt string) (*RunResult, error)
}

// CommandService orchestrates one command request end to end: feature gate,
// identity, input validation, board access, rate limits, idempotent replay,
// lifecycle record, agent run, and finalization.
type CommandService struct {
	enabled  bool
	limits   config.RateLimitConfig
	verifier domain.IdentityVerifier
	boards   domain.BoardStore
	commands domain.CommandStore
	limiter  RateLimiter
	runner   CommandRunner
	logger   *slog.Logger
	now      func() time.Time
}

func NewCommandService(
	cfg *config.Config,
	verifier domain.IdentityVerifier,
	boards domain.BoardStore,
	commands domain.CommandStore,
	limiter RateLimiter,
	runner CommandRunner,
	logger *slog.Logger,
) *CommandService {
	return &CommandService{
		enabled:  cfg.Agent.Enabled,
		limits:   cfg.RateLimit,
		verifier: verifier,
		boards:   boards,
		commands: commands,
		limiter:  limiter,
		runner:   runner,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit processes one command request. The returned error covers rejections
// before any lifecycle state exists; once a record is created every outcome,
// including a failed run, comes back as a SubmitResult.
func (s *CommandService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	const op = "CommandService.Submit"
	startedAt := s.now()

	if !s.enabled {
		return nil, domain.NewDomainError(op, domain.ErrDisabled, "AI commands are temporarily disabled.")
	}

	if in.Token == "" {
		return nil, domain.NewDomainError(op, domain.ErrAuthInvalid, "Missing or invalid Authorization header.")
	}
	actor, err := s.verifier.Verify(ctx, in.Token)
	if err != nil {
		return nil, domain.NewDomainError(op, domain.ErrAuthInvalid, "Invalid or expired token.")
	}

	if in.BoardID == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "boardId is required")
	}
	if in.Prompt == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "prompt is required")
	}
	if in.ClientRequestID == "" {
		return nil, domain.NewDomainError(op, domain.ErrInvalidInput, "clientRequestId is required")
	}
	idempotencyKey := in.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = in.ClientRequestID
	}

	if _, err := s.boards.GetBoard(ctx, in.BoardID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewDomainError(op, domain.ErrForbidden, "Board not found or access denied.")
		}
		return nil, domain.WrapOp(op, err)
	}

	if d := s.limiter.Check(RateLimitKey("user", actor), s.limits.Window, s.limits.PerUser); !d.Allowed {
		return nil, &RateLimitError{Scope: "user", RetryAfterSeconds: d.RetryAfterSeconds}
	}
	if d := s.limiter.Check(RateLimitKey("board", in.BoardID), s.limits.Window, s.limits.PerBoard); !d.Allowed {
		return nil, &RateLimitError{Scope: "board", RetryAfterSeconds: d.RetryAfterSeconds}
	}

	commandID := domain.DeriveCommandID(in.BoardID, actor, in.ClientRequestID, idempotencyKey)

	existing, err := s.commands.GetCommand(ctx, in.BoardID, commandID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.WrapOp(op, err)
	}
	if existing != nil {
		s.logCommand(commandID, in.BoardID, actor, startedAt, existing.Status, existing.Error)
		return &SubmitResult{
			CommandID:      commandID,
			Status:         domain.APIStatus(existing.Status),
			Summary:        existing.Summary,
			Replayed:       true,
			FailureMessage: existing.Error,
		}, nil
	}

	cmd := &domain.AICommand{
		ID:              commandID,
		BoardID:         in.BoardID,
		Prompt:          in.Prompt,
		Actor:           actor,
		IdempotencyKey:  idempotencyKey,
		ClientRequestID: in.ClientRequestID,
	}
	if err := s.commands.CreateRunning(ctx, cmd); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost a race with a concurrent retry of the same request; the
			// record it created is authoritative.
			if winner, getErr := s.commands.GetCommand(ctx, in.BoardID, commandID); getErr == nil {
				s.logCommand(commandID, in.BoardID, actor, startedAt, winner.Status, winner.Error)
				return &SubmitResult{
					CommandID:      commandID,
					Status:         domain.APIStatus(winner.Status),
					Summary:        winner.Summary,
					Replayed:       true,
					FailureMessage: winner.Error,
				}, nil
			}
		}
		return nil, domain.WrapOp(op, err)
	}

	result, runErr := s.runner.Run(ctx, in.BoardID, in.Prompt)
	if runErr != nil {
		s.finalize(ctx, in.BoardID, commandID, domain.CommandFailed, failedSummary, runErr.Error())
		s.logCommand(commandID, in.BoardID, actor, startedAt, domain.CommandFailed, runErr.Error())
		return &SubmitResult{
			CommandID:      commandID,
			Status:         domain.APIStatusError,
			Summary:        failedSummary,
			Internal:       true,
			FailureCode:    domain.CodeInternal,
			FailureMessage: runErr.Error(),
		}, nil
	}

	if result.Status == domain.CommandFailed {
		s.finalize(ctx, in.BoardID, commandID, domain.CommandFailed, result.Summary, result.Err)
		s.logCommand(commandID, in.BoardID, actor, startedAt, domain.CommandFailed, result.Err)
		return &SubmitResult{
			CommandID:      commandID,
			Status:         domain.APIStatusError,
			Summary:        result.Summary,
			FailureCode:    domain.CodeRunnerError,
			FailureMessage: result.Err,
		}, nil
	}

	s.finalize(ctx, in.BoardID, commandID, domain.CommandCompleted, result.Summary, "")
	s.logCommand(commandID, in.BoardID, actor, startedAt, domain.CommandCompleted, "")
	return &SubmitResult{
		CommandID: commandID,
		Status:    domain.APIStatusSuccess,
		Summary:   result.Summary,
	}, nil
}

// GetCommand returns one lifecycle record for status polling.
func (s *CommandService) GetCommand(ctx context.Context, boardID, commandID string) (*domain.AICommand, error) {
	return s.commands.GetCommand(ctx, boardID, commandID)
}

// ListRecentCommands returns up to limit records for a board, newest first.
func (s *CommandService) ListRecentCommands(ctx context.Context, boardID string, limit int) ([]domain.AICommand, error) {
	return s.commands.ListRecentCommands(ctx, boardID, limit)
}

// finalize transitions the record; the command outcome is already decided,
// so a finalize failure is logged rather than surfaced. The write is detached
// from request cancellation: a client disconnect mid-run must not strand the
// record in the running state, where every idempotent retry would replay it
// as pending forever.
func (s *CommandService) finalize(ctx context.Context, boardID, commandID, status, summary, errMsg string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.commands.Finalize(ctx, boardID, commandID, status, summary, errMsg); err != nil {
		s.logger.Error("finalize command failed",
			"board_id", boardID,
			"command_id", commandID,
			"status", status,
			"error", err)
	}
}

// logCommand emits the per-command observability event.
func (s *CommandService) logCommand(commandID, boardID, actor string, startedAt time.Time, status, failureReason string) {
	attrs := []any{
		"command_id", commandID,
		"board_id", boardID,
		"actor", actor,
		"latency_ms", s.now().Sub(startedAt).Milliseconds(),
		"status", status,
	}
	if failureReason != "" {
		attrs = append(attrs, "failure_reason", failureReason)
	}
	s.logger.Info("ai_command", attrs...)
}
