package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"boardpilot/internal/adapter/auth"
	"boardpilot/internal/adapter/httpapi"
	"boardpilot/internal/adapter/llm"
	"boardpilot/internal/adapter/store"
	"boardpilot/internal/adapter/tool"
	"boardpilot/internal/domain"
	"boardpilot/internal/infra/config"
	"boardpilot/internal/infra/logger"
	"boardpilot/internal/infra/tracer"
	"boardpilot/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "token":
		if err := runToken(); err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			os.Exit(1)
		}
	case "seed":
		if err := runSeed(); err != nil {
			fmt.Fprintf(os.Stderr, "seed: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'boardpilot --help' for usage.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`boardpilot - AI command server for collaborative whiteboards

USAGE:
    boardpilot [COMMAND] [FLAGS]

COMMANDS:
    token BOARD_USER   Mint a signed actor token for local testing
    seed BOARD_ID      Create a board record for local testing

    (no command) - Run the server with existing config

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml if present)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: OPENAI_API_KEY, BOARDPILOT_* variables override config

EXAMPLES:
    boardpilot                                 # Run with config.yaml
    boardpilot --config /etc/boardpilot.yaml   # Run with custom config
    boardpilot seed board-demo                 # Create a demo board
    boardpilot token user-1                    # Mint a bearer token`)
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Store
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	// 4. Tooling
	catalog, err := tool.NewCatalog()
	if err != nil {
		return fmt.Errorf("tool catalog: %w", err)
	}
	executor := tool.NewExecutor(st, catalog, log)

	// 5. LLM provider behind a circuit breaker
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm: api key is required (set OPENAI_API_KEY)")
	}
	var provider domain.LLMProvider = llm.NewOpenAIProvider(cfg.LLM, log)
	provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM, log)

	// 6. Service wiring
	verifier := auth.NewHMACVerifier(cfg.Auth.Secret)
	runner := usecase.NewAgentRunner(
		provider, executor, st, catalog,
		cfg.Agent.MaxIterations, cfg.Agent.SystemPrompt, log,
	)
	service := usecase.NewCommandService(
		cfg, verifier, st, st,
		usecase.NewFixedWindowLimiter(), runner, log,
	)

	// 7. HTTP server
	server := httpapi.NewServer(cfg.Server, service, log)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	log.Info("boardpilot started",
		"addr", server.Addr(),
		"provider", provider.Name(),
		"model", cfg.LLM.Model,
		"agent_enabled", cfg.Agent.Enabled,
		"tools", len(catalog.Names()),
	)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("boardpilot stopped")
	return nil
}

// runToken mints a signed bearer token for the given actor id, for local
// testing against a server sharing the same auth secret.
func runToken() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: boardpilot token ACTOR_ID")
	}
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	verifier := auth.NewHMACVerifier(cfg.Auth.Secret)
	fmt.Println(verifier.SignToken(os.Args[2], time.Hour))
	return nil
}

// runSeed creates a board record so local commands have a target board.
func runSeed() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: boardpilot seed BOARD_ID")
	}
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	boardID := os.Args[2]
	now := time.Now().UTC()
	err = st.CreateBoard(context.Background(), &domain.Board{
		ID:        boardID,
		Name:      boardID,
		CreatedBy: "seed",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	fmt.Printf("created board %s in %s\n", boardID, cfg.Store.Path)
	return nil
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("BOARDPILOT_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}
