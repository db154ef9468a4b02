package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/config"
	"boardpilot/internal/infra/middleware"
	"boardpilot/internal/usecase"
)

// maxRequestBody caps command request bodies.
const maxRequestBody = 1 << 20 // 1 MB

const defaultListLimit = 20

// Server is the HTTP API for AI board commands.
type Server struct {
	server  *http.Server
	service *usecase.CommandService
	logger  *slog.Logger
	cfg     config.ServerConfig

	boundAddr string

	// Lifecycle for the rate limiter cleanup goroutine.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(cfg config.ServerConfig, service *usecase.CommandService, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		service: service,
		logger:  logger,
	}
}

// Routes builds the request handler, including middleware. Exposed for tests.
func (s *Server) Routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ai/commands", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/boards/{boardId}/ai_commands", s.handleListCommands)
	mux.HandleFunc("GET /api/v1/boards/{boardId}/ai_commands/{commandId}", s.handleGetCommand)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	return middleware.SecurityHeaders(
		middleware.RateLimit(ctx, s.cfg.HTTPRequestsPerMin, s.cfg.HTTPBurst)(mux),
	)
}

// Start begins serving. Non-blocking; errors after startup are logged.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(s.ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("http server started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the actual bound address, valid after Start.
func (s *Server) Addr() string { return s.boundAddr }

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// --- Wire types ---

type commandRequest struct {
	BoardID         string `json:"boardId"`
	Prompt          string `json:"prompt"`
	ClientRequestID string `json:"clientRequestId"`
	IdempotencyKey  string `json:"idempotencyKey,omitempty"`
}

type commandData struct {
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
	Summary   string `json:"summary"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type commandResponse struct {
	Data  *commandData `json:"data,omitempty"`
	Error *apiError    `json:"error,omitempty"`
}

type commandRecord struct {
	CommandID string    `json:"commandId"`
	BoardID   string    `json:"boardId"`
	Prompt    string    `json:"prompt"`
	Actor     string    `json:"actor"`
	Status    string    `json:"status"`
	Summary   string    `json:"summary"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// --- Handlers ---

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "Invalid JSON body."
		if err.Error() == "http: request body too large" {
			msg = "Request body too large (max 1MB)."
		}
		writeError(w, http.StatusBadRequest, string(domain.CodeBadRequest), msg)
		return
	}

	result, err := s.service.Submit(r.Context(), usecase.SubmitInput{
		Token:           bearerToken(r),
		BoardID:         req.BoardID,
		Prompt:          req.Prompt,
		ClientRequestID: req.ClientRequestID,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	resp := commandResponse{
		Data: &commandData{
			CommandID: result.CommandID,
			Status:    result.Status,
			Summary:   result.Summary,
		},
	}

	status := http.StatusOK
	switch {
	case result.Internal:
		status = http.StatusInternalServerError
		resp.Error = &apiError{Message: result.FailureMessage, Code: string(domain.CodeInternal)}
	// Replays return only the recorded outcome; the error block belongs to
	// the request that actually ran the command.
	case result.Status == domain.APIStatusError && result.FailureMessage != "" && !result.Replayed:
		code := result.FailureCode
		if code == "" {
			code = domain.CodeRunnerError
		}
		resp.Error = &apiError{Message: result.FailureMessage, Code: string(code)}
	}

	writeJSON(w, status, resp)
}

// writeSubmitError maps pre-state rejections to their HTTP responses.
func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	var rle *usecase.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, string(domain.CodeRateLimited), rle.Error())
		return
	}

	code := domain.ErrorCodeOf(err)
	msg := errorMessage(err)

	switch code {
	case domain.CodeFeatureOff:
		writeError(w, http.StatusServiceUnavailable, string(code), msg)
	case domain.CodeUnauthorized:
		writeError(w, http.StatusUnauthorized, string(code), msg)
	case domain.CodeBadRequest:
		writeError(w, http.StatusBadRequest, string(code), msg)
	case domain.CodeForbidden:
		writeError(w, http.StatusForbidden, string(code), msg)
	default:
		s.logger.Error("command request failed", "error", err)
		writeError(w, http.StatusInternalServerError, string(domain.CodeInternal), "Internal server error.")
	}
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	boardID := r.PathValue("boardId")

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, string(domain.CodeBadRequest), "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	commands, err := s.service.ListRecentCommands(r.Context(), boardID, limit)
	if err != nil {
		s.logger.Error("list commands failed", "board_id", boardID, "error", err)
		writeError(w, http.StatusInternalServerError, string(domain.CodeInternal), "Internal server error.")
		return
	}

	records := make([]commandRecord, 0, len(commands))
	for i := range commands {
		records = append(records, toRecord(&commands[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": records})
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	boardID := r.PathValue("boardId")
	commandID := r.PathValue("commandId")

	cmd, err := s.service.GetCommand(r.Context(), boardID, commandID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Command not found.")
			return
		}
		s.logger.Error("get command failed", "board_id", boardID, "command_id", commandID, "error", err)
		writeError(w, http.StatusInternalServerError, string(domain.CodeInternal), "Internal server error.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": toRecord(cmd)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

func toRecord(cmd *domain.AICommand) commandRecord {
	return commandRecord{
		CommandID: cmd.ID,
		BoardID:   cmd.BoardID,
		Prompt:    cmd.Prompt,
		Actor:     cmd.Actor,
		Status:    domain.APIStatus(cmd.Status),
		Summary:   cmd.Summary,
		Error:     cmd.Error,
		CreatedAt: cmd.CreatedAt,
		UpdatedAt: cmd.UpdatedAt,
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// errorMessage prefers the human-readable detail of a DomainError.
func errorMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing useful left to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, commandResponse{
		Error: &apiError{Message: message, Code: code},
	})
}
