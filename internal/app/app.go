package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"survey-engine/internal/config"
	"survey-engine/internal/handler"
	"survey-engine/internal/logger"
	"survey-engine/internal/middleware"
	"survey-engine/internal/repository"
	"survey-engine/internal/router"
	"survey-engine/internal/service"
	"survey-engine/internal/websocket"
)

type App struct {
	server       *http.Server
	engine       *Engine
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Setup(os.Stdout, cfg.LogFormat, cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}

	engine, err := OpenEngine(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	tokenService, err := service.NewTokenService(cfg.JWTSecret)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	hub := websocket.NewHub(engine.Bus)
	auditService := service.NewAuditService(repository.NewAuditRepository(engine.DB.Pool), engine.Bus)

	appRouter := router.New(
		cfg,
		authMiddleware,
		handler.NewRecordHandler(engine.Overlay),
		handler.NewDraftHandler(engine.Overlay),
		handler.NewTrashHandler(engine.Trash),
		handler.NewAuditHandler(auditService),
		hub,
		engine.DB.Health,
	)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	go hub.Run(backgroundCtx)
	auditService.Start(backgroundCtx)
	go engine.Trash.StartSweeper(backgroundCtx, cfg.SweepInterval)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		engine: engine,
		cleanupFuncs: []func(){
			backgroundCancel,
			engine.Close,
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop accepting requests before the pool goes away.
	shutdownErr := a.server.Shutdown(ctx)

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
