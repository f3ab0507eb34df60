package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"

	"talentlink/internal/config"
	"talentlink/internal/db"
	"talentlink/internal/engine"
	"talentlink/internal/logging"
	"talentlink/internal/migrate"
)

// App bundles the opened database with the engine and config built over it.
type App struct {
	DB     *sql.DB
	Engine engine.Engine
	Config *config.Config
	Logger *slog.Logger
}

type Options struct {
	DataDir string
	// ConfigPath overrides talentlink.yml in the data directory.
	ConfigPath string
	LogOutput  io.Writer
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOptional(opts.DataDir)
}

// Open loads config, opens and migrates the database and installs the
// configured logger as the slog default.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.Default()
	if opts.LogOutput != nil {
		logger = logging.New(opts.LogOutput, cfg.Log.Level, cfg.Log.Format, !color.NoColor)
		slog.SetDefault(logger)
	}
	conn, err := db.Open(db.Config{DataDir: opts.DataDir})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	return &App{DB: conn, Engine: e, Config: cfg, Logger: logger}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
