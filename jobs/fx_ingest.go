package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-posting/internal/fx"
	jobmetrics "github.com/odyssey-erp/odyssey-posting/internal/jobs"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// FXRefresher runs one ingestion and persists the result.
type FXRefresher interface {
	Refresh(ctx context.Context, base string, targets []string, threshold time.Duration) (fx.Result, error)
}

// FXIngestJob handles TaskFXIngest.
type FXIngestJob struct {
	Refresher FXRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewFXIngestJob constructs the job handler.
func NewFXIngestJob(refresher FXRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *FXIngestJob {
	return &FXIngestJob{
		Refresher: refresher,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes an FX refresh. Transient failures are returned so asynq
// retries them; malformed payloads and non-retryable failures skip retry.
func (j *FXIngestJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Refresher == nil {
		return errors.New("fx ingest: dependencies not configured")
	}
	var payload FXIngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	threshold, err := fx.ParseThreshold(payload.StaleThreshold)
	if err != nil {
		j.log().Error("invalid payload", slog.String("stale_threshold", payload.StaleThreshold), slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskFXIngest)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	res, err := j.Refresher.Refresh(ctx, payload.Base, payload.Targets, threshold)
	if err != nil {
		resultErr = err
		logger := j.log().With(slog.String("base", payload.Base), slog.String("code", string(shared.CodeOf(err))))
		if shared.CodeOf(err) != "" && !shared.IsRetryable(err) {
			logger.Error("fx ingest rejected", slog.Any("error", err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Warn("fx ingest failed, will retry", slog.Any("error", err))
		return resultErr
	}

	if res.IsStale {
		j.metrics().MarkStale(res.Base)
	}
	j.metrics().SetLastSuccess(TaskFXIngest, j.now())
	j.log().Info("fx rates refreshed",
		slog.String("base", res.Base),
		slog.String("source", res.SourceName),
		slog.Int("rates", len(res.Rates)),
		slog.Bool("stale", res.IsStale),
		slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *FXIngestJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *FXIngestJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFXIngest))
	}
	return slog.Default().With(slog.String("job", TaskFXIngest))
}

func (j *FXIngestJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *FXIngestJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
