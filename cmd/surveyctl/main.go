package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"survey-engine/internal/app"
	"survey-engine/internal/cli"
	"survey-engine/internal/config"
	"survey-engine/internal/database"
	"survey-engine/internal/logger"
	"survey-engine/internal/model"
	"survey-engine/internal/service"
)

func main() {
	cfg := config.Parse()
	// Operator output goes to stdout, logs to stderr.
	if err := logger.Setup(os.Stderr, cfg.LogFormat, cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := cli.Deps{
		OpenTrash: func(ctx context.Context) (cli.TrashOperator, func(), error) {
			if err := cfg.ValidateStore(); err != nil {
				return nil, nil, err
			}
			engine, err := app.OpenEngine(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			return engine.Trash, engine.Close, nil
		},
		Migrate: func(ctx context.Context) error {
			if err := cfg.ValidateStore(); err != nil {
				return err
			}
			db, err := database.New(ctx, cfg.DatabaseURL, database.PoolOptions{MaxConns: 2})
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Migrate(ctx)
		},
		IssueToken: func(claims model.AuthClaims, ttl time.Duration) (string, error) {
			tokens, err := service.NewTokenService(cfg.JWTSecret)
			if err != nil {
				return "", err
			}
			return tokens.IssueToken(claims, ttl)
		},
	}

	if err := cli.Execute(ctx, deps, os.Args[1:], os.Stdout); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
