// Package app wires the application together for the CLI and the
// server: workspace database, config, logger, model client, engine
// and chat orchestrator.
package app

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"taskline/internal/ai"
	"taskline/internal/chat"
	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/llm"
	"taskline/internal/migrate"
)

// App is the assembled application.
type App struct {
	DB           *sql.DB
	Config       *config.Config
	Log          *zap.Logger
	Engine       engine.Engine
	Orchestrator chat.Orchestrator
}

// Options control assembly.
type Options struct {
	Workspace string
	// Verbose switches the logger to development output at debug level.
	Verbose bool
}

// Open assembles the application from a workspace directory. A .env
// file next to the config is loaded first so key material can live
// outside taskline.yml.
func Open(opts Options) (*App, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(opts.Verbose)
	if err != nil {
		return nil, err
	}

	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	sqlDB, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	eng := engine.New(sqlDB, cfg)

	client, err := newModelClient(cfg)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	orch := chat.Orchestrator{
		Conversations: chat.ConversationService{Repo: eng.Repo},
		Interpreter:   ai.NewInterpreter(client, cfg.AI.Timeout(), log),
		Thresholds:    ai.Thresholds{High: cfg.AI.HighConfidence, Low: cfg.AI.LowConfidence},
		Executor:      ai.Executor{Engine: eng},
		Repo:          eng.Repo,
		Config:        cfg,
		Log:           log,
	}

	return &App{
		DB:           sqlDB,
		Config:       cfg,
		Log:          log,
		Engine:       eng,
		Orchestrator: orch,
	}, nil
}

// Close releases resources.
func (a *App) Close() error {
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// JWTSecret resolves the signing secret from the configured env var.
func (a *App) JWTSecret() (string, error) {
	name := a.Config.Auth.JWTSecretEnv
	secret := os.Getenv(name)
	if secret == "" {
		return "", fmt.Errorf("jwt secret env %s is not set", name)
	}
	return secret, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func newModelClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.AI.Provider {
	case "mock":
		return &llm.MockClient{}, nil
	case "openai":
		key := os.Getenv(cfg.AI.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("api key env %s is not set", cfg.AI.APIKeyEnv)
		}
		return llm.NewOpenAIClient(key, cfg.AI.BaseURL, cfg.AI.Model), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
}
