package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Snapshots caches the latest result per base currency.
type Snapshots interface {
	Save(ctx context.Context, res Result) error
	Latest(ctx context.Context, base string) (Result, error)
	Rate(ctx context.Context, from, to string) (RateData, Priority, error)
}

// Ingester is satisfied by *Ingestor.
type Ingester interface {
	Ingest(ctx context.Context, base string, targets []string, threshold time.Duration) (Result, error)
}

// Service runs an ingestion and persists what it fetched.
type Service struct {
	ingester  Ingester
	snapshots Snapshots
	history   Repository
	logger    *slog.Logger
}

// NewService wires the ingestion pipeline. history may be nil when no
// database is configured.
func NewService(ingester Ingester, snapshots Snapshots, history Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ingester: ingester, snapshots: snapshots, history: history, logger: logger}
}

// Refresh ingests base→targets, caches the snapshot and appends the rates to
// history. A history write failure is logged and does not fail the refresh.
func (s *Service) Refresh(ctx context.Context, base string, targets []string, threshold time.Duration) (Result, error) {
	if s == nil || s.ingester == nil {
		return Result{}, errors.New("fx: service not configured")
	}
	res, err := s.ingester.Ingest(ctx, base, targets, threshold)
	if err != nil {
		return Result{}, err
	}
	if s.snapshots != nil {
		if err := s.snapshots.Save(ctx, res); err != nil {
			return res, fmt.Errorf("fx: save snapshot: %w", err)
		}
	}
	if s.history != nil {
		if err := s.history.SaveRates(ctx, res); err != nil {
			s.logger.Warn("fx history write failed", slog.String("base", res.Base), slog.Any("error", err))
		}
	}
	return res, nil
}

// Latest returns the cached snapshot for base.
func (s *Service) Latest(ctx context.Context, base string) (Result, error) {
	if s == nil || s.snapshots == nil {
		return Result{}, errors.New("fx: snapshot store not configured")
	}
	return s.snapshots.Latest(ctx, base)
}

// Rate resolves from→to from the cached snapshots.
func (s *Service) Rate(ctx context.Context, from, to string) (RateData, Priority, error) {
	if s == nil || s.snapshots == nil {
		return RateData{}, "", errors.New("fx: snapshot store not configured")
	}
	return s.snapshots.Rate(ctx, from, to)
}
