package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardpilot/internal/domain"
	"boardpilot/internal/infra/config"
	"boardpilot/internal/usecase"
)

type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token != "good-token" {
		return "", domain.ErrAuthInvalid
	}
	return "user-1", nil
}

type stubBoards struct{}

func (stubBoards) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	if boardID != "board-1" {
		return nil, domain.ErrNotFound
	}
	return &domain.Board{ID: boardID}, nil
}

func (stubBoards) CreateBoard(ctx context.Context, b *domain.Board) error { return nil }

func (stubBoards) ListObjects(ctx context.Context, boardID string) ([]domain.BoardObject, error) {
	return nil, nil
}

func (stubBoards) NewBatch() domain.WriteBatch { return nil }

type stubCommands struct {
	records map[string]*domain.AICommand
}

func newStubCommands() *stubCommands {
	return &stubCommands{records: make(map[string]*domain.AICommand)}
}

func (s *stubCommands) GetCommand(ctx context.Context, boardID, commandID string) (*domain.AICommand, error) {
	cmd, ok := s.records[boardID+"/"+commandID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *cmd
	return &copied, nil
}

func (s *stubCommands) CreateRunning(ctx context.Context, cmd *domain.AICommand) error {
	key := cmd.BoardID + "/" + cmd.ID
	if _, exists := s.records[key]; exists {
		return domain.ErrDuplicate
	}
	stored := *cmd
	stored.Status = domain.CommandRunning
	stored.Summary = "Running..."
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.records[key] = &stored
	return nil
}

func (s *stubCommands) Finalize(ctx context.Context, boardID, commandID, status, summary, errMsg string) error {
	cmd, ok := s.records[boardID+"/"+commandID]
	if !ok {
		return domain.ErrNotFound
	}
	cmd.Status = status
	cmd.Summary = summary
	cmd.Error = errMsg
	cmd.UpdatedAt = time.Now()
	return nil
}

func (s *stubCommands) ListRecentCommands(ctx context.Context, boardID string, limit int) ([]domain.AICommand, error) {
	var out []domain.AICommand
	for _, cmd := range s.records {
		if cmd.BoardID == boardID && len(out) < limit {
			out = append(out, *cmd)
		}
	}
	return out, nil
}

type stubRunner struct {
	result *usecase.RunResult
}

func (r *stubRunner) Run(ctx context.Context, boardID, prompt string) (*usecase.RunResult, error) {
	return r.result, nil
}

type fixture struct {
	handler  http.Handler
	commands *stubCommands
	runner   *stubRunner
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPRequestsPerMin = 100000
	cfg.Server.HTTPBurst = 10000
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	commands := newStubCommands()
	runner := &stubRunner{result: &usecase.RunResult{
		Status:   domain.CommandCompleted,
		Summary:  "Added one sticky note.",
		Executed: 1,
	}}

	service := usecase.NewCommandService(
		cfg,
		stubVerifier{},
		stubBoards{},
		commands,
		usecase.NewFixedWindowLimiter(),
		runner,
		logger,
	)

	server := NewServer(cfg.Server, service, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &fixture{
		handler:  server.Routes(ctx),
		commands: commands,
		runner:   runner,
	}
}

func postCommand(t *testing.T, handler http.Handler, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/commands", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) commandResponse {
	t.Helper()
	var resp commandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const validBody = `{"boardId":"board-1","prompt":"Add a sticky note","clientRequestId":"req-1"}`

func TestSubmitEndpointSuccess(t *testing.T) {
	f := newFixture(t, nil)

	rec := postCommand(t, f.handler, "good-token", validBody)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	assert.Equal(t, domain.APIStatusSuccess, resp.Data.Status)
	assert.Equal(t, "Added one sticky note.", resp.Data.Summary)
	assert.Len(t, resp.Data.CommandID, 32)
	assert.Nil(t, resp.Error)
}

func TestSubmitEndpointMissingAuth(t *testing.T) {
	f := newFixture(t, nil)

	rec := postCommand(t, f.handler, "", validBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestSubmitEndpointBadToken(t *testing.T) {
	f := newFixture(t, nil)

	rec := postCommand(t, f.handler, "bad-token", validBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitEndpointFeatureDisabled(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Agent.Enabled = false })

	rec := postCommand(t, f.handler, "good-token", validBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FEATURE_DISABLED", resp.Error.Code)
}

func TestSubmitEndpointInvalidJSON(t *testing.T) {
	f := newFixture(t, nil)

	rec := postCommand(t, f.handler, "good-token", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
}

func TestSubmitEndpointMissingFields(t *testing.T) {
	f := newFixture(t, nil)

	rec := postCommand(t, f.handler, "good-token", `{"boardId":"board-1","clientRequestId":"req-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "prompt is required")
}

func TestSubmitEndpointUnknownBoard(t *testing.T) {
	f := newFixture(t, nil)

	rec := postCommand(t, f.handler, "good-token",
		`{"boardId":"ghost","prompt":"hi","clientRequestId":"req-1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
	assert.Equal(t, "Board not found or access denied.", resp.Error.Message)
}

func TestSubmitEndpointRateLimited(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.RateLimit.PerUser = 1 })

	rec := postCommand(t, f.handler, "good-token", validBody)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postCommand(t, f.handler, "good-token",
		`{"boardId":"board-1","prompt":"again","clientRequestId":"req-2"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RATE_LIMITED", resp.Error.Code)
}

func TestSubmitEndpointReplay(t *testing.T) {
	f := newFixture(t, nil)

	first := decodeResponse(t, postCommand(t, f.handler, "good-token", validBody))
	second := decodeResponse(t, postCommand(t, f.handler, "good-token", validBody))

	require.NotNil(t, second.Data)
	assert.Equal(t, first.Data.CommandID, second.Data.CommandID)
	assert.Equal(t, first.Data.Summary, second.Data.Summary)
}

func TestSubmitEndpointRunnerFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.result = &usecase.RunResult{
		Status:  domain.CommandFailed,
		Summary: "Failed to execute AI command.",
		Err:     "Unknown tool: teleportObject",
	}

	rec := postCommand(t, f.handler, "good-token", validBody)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	assert.Equal(t, domain.APIStatusError, resp.Data.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RUNNER_ERROR", resp.Error.Code)
	assert.Equal(t, "Unknown tool: teleportObject", resp.Error.Message)
}

func TestSubmitEndpointReplayOfFailedCommandOmitsError(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.result = &usecase.RunResult{
		Status:  domain.CommandFailed,
		Summary: "Failed to execute AI command.",
		Err:     "Unknown tool: teleportObject",
	}

	first := decodeResponse(t, postCommand(t, f.handler, "good-token", validBody))
	require.NotNil(t, first.Error)

	rec := postCommand(t, f.handler, "good-token", validBody)
	require.Equal(t, http.StatusOK, rec.Code)

	replay := decodeResponse(t, rec)
	require.NotNil(t, replay.Data)
	assert.Equal(t, domain.APIStatusError, replay.Data.Status)
	assert.Equal(t, first.Data.CommandID, replay.Data.CommandID)
	assert.Nil(t, replay.Error)
}

func TestSubmitEndpointBodyTooLarge(t *testing.T) {
	f := newFixture(t, nil)

	huge := bytes.Repeat([]byte("a"), maxRequestBody+1)
	body := `{"boardId":"board-1","prompt":"` + string(huge) + `","clientRequestId":"req-1"}`
	rec := postCommand(t, f.handler, "good-token", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCommandEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	created := decodeResponse(t, postCommand(t, f.handler, "good-token", validBody))
	require.NotNil(t, created.Data)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/boards/board-1/ai_commands/"+created.Data.CommandID, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data commandRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.Data.CommandID, resp.Data.CommandID)
	assert.Equal(t, domain.APIStatusSuccess, resp.Data.Status)
	assert.Equal(t, "user-1", resp.Data.Actor)
}

func TestGetCommandEndpointNotFound(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/boards/board-1/ai_commands/nope", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCommandsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	postCommand(t, f.handler, "good-token", validBody)
	postCommand(t, f.handler, "good-token",
		`{"boardId":"board-1","prompt":"another","clientRequestId":"req-2"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/boards/board-1/ai_commands?limit=10", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data []commandRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestListCommandsEndpointRejectsBadLimit(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/boards/board-1/ai_commands?limit=0", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
