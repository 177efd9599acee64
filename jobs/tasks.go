package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-posting/internal/jobs"
	"github.com/odyssey-erp/odyssey-posting/internal/platform/cache"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueFX carries exchange-rate refreshes.
	QueueFX = "fx"
	// TaskFXIngest refreshes exchange rates for one base currency.
	TaskFXIngest = "fx:ingest"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// FXIngestPayload describes one ingestion run. StaleThreshold uses the
// duration or preset syntax accepted by fx.ParseThreshold; empty means the
// default.
type FXIngestPayload struct {
	Base           string   `json:"base"`
	Targets        []string `json:"targets"`
	StaleThreshold string   `json:"stale_threshold,omitempty"`
}

// NewFXIngestTask builds an asynq task for an FX refresh.
func NewFXIngestTask(payload FXIngestPayload) (*asynq.Task, error) {
	payload.Base = strings.ToUpper(strings.TrimSpace(payload.Base))
	if payload.Base == "" {
		return nil, errors.New("fx ingest: base currency required")
	}
	if len(payload.Targets) == 0 {
		return nil, errors.New("fx ingest: at least one target currency required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFXIngest, body, asynq.Queue(QueueFX), asynq.MaxRetry(3)), nil
}

// RedisOpt converts a host:port address or redis:// URL into asynq options.
func RedisOpt(addr string) (asynq.RedisClientOpt, error) {
	opts, err := cache.Options(addr)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}
