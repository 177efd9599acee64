package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an asynq-backed client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	if redisOpts.Addr == "" {
		return nil, errors.New("jobs: redis address required")
	}
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueFXIngest enqueues an FX refresh for one base currency.
func (c *Client) EnqueueFXIngest(ctx context.Context, payload FXIngestPayload) (*asynq.TaskInfo, error) {
	task, err := NewFXIngestTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueIngest satisfies fx.IngestQueue.
func (c *Client) EnqueueIngest(ctx context.Context, base string, targets []string, staleThreshold string) (string, error) {
	info, err := c.EnqueueFXIngest(ctx, FXIngestPayload{Base: base, Targets: targets, StaleThreshold: staleThreshold})
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// FXIngestSchedule builds one cron registration per base currency. An empty
// spec disables scheduling.
func FXIngestSchedule(spec string, bases, targets []string, staleThreshold string) ([]CronRegistration, error) {
	if spec == "" {
		return nil, nil
	}
	entries := make([]CronRegistration, 0, len(bases))
	for _, base := range bases {
		task, err := NewFXIngestTask(FXIngestPayload{Base: base, Targets: targets, StaleThreshold: staleThreshold})
		if err != nil {
			return nil, err
		}
		entries = append(entries, CronRegistration{Spec: spec, Task: task})
	}
	return entries, nil
}
