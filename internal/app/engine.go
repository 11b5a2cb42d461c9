package app

import (
	"context"
	"fmt"
	"log/slog"

	"survey-engine/internal/assets"
	"survey-engine/internal/config"
	"survey-engine/internal/database"
	"survey-engine/internal/event"
	"survey-engine/internal/repository"
	"survey-engine/internal/service"
)

// Engine is the store-backed core shared by the HTTP server and the
// operator CLI.
type Engine struct {
	DB      *database.DB
	Bus     *event.InMemoryBus
	Overlay *service.OverlayService
	Trash   *service.TrashService
}

// OpenEngine connects to PostgreSQL, applies pending migrations and builds
// the overlay and trash services on top of the pool.
func OpenEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, database.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database ready")

	assetStore, err := NewAssetStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize asset store: %w", err)
	}

	store := repository.NewPostgresStore(db.Pool)
	bus := event.NewBus()
	collab := service.Collaborators{Assets: assetStore}
	settings := SettingsFrom(cfg)

	return &Engine{
		DB:      db,
		Bus:     bus,
		Overlay: service.NewOverlayService(store, bus, collab, settings),
		Trash:   service.NewTrashService(store, bus, collab, settings),
	}, nil
}

func (e *Engine) Close() {
	e.DB.Close()
}

func SettingsFrom(cfg *config.Config) service.Settings {
	return service.Settings{
		CascadeConcurrency: cfg.CascadeConcurrency,
		SortKeyMinGap:      cfg.SortKeyMinGap,
		TrashRetention:     cfg.TrashRetention,
		TrashMaxAttempts:   cfg.TrashMaxAttempts,
	}
}

// NewAssetStore picks the binary backend named by ASSET_BACKEND. The "none"
// backend returns a nil store, which makes the engine reject uploads.
func NewAssetStore(ctx context.Context, cfg *config.Config) (service.AssetStore, error) {
	switch cfg.AssetBackend {
	case config.AssetBackendLocal:
		store, err := assets.NewLocalStore(cfg.AssetRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.AssetBackendS3:
		store, err := assets.NewS3Store(ctx, assets.S3Options{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.AssetBackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown asset backend %q", cfg.AssetBackend)
	}
}
