package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-posting/internal/fx"
)

// NewFXService assembles the ingestion pipeline shared by the API, the
// worker and the CLI. A nil pool disables rate history; a nil observer
// disables ingestion metrics.
func NewFXService(cfg *Config, logger *slog.Logger, client *redis.Client, pool *pgxpool.Pool, observer fx.Observer) *fx.Service {
	ingestor := fx.NewIngestor(fx.NewHTTPFetcher(nil), fx.DefaultSources(), logger)
	ingestor.WithBackoffBase(cfg.FXBackoffBase)
	if observer != nil {
		ingestor.WithObserver(observer)
	}

	var history fx.Repository
	if pool != nil {
		history = fx.NewRepository(pool)
	}
	return fx.NewService(ingestor, fx.NewStore(client, cfg.FXRateTTL), history, logger)
}
