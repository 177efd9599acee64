// Package fx fetches exchange rates from an ordered table of providers,
// falling back and retrying with backoff, and reports how stale the result is.
package fx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/odyssey-posting/internal/currency"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// DefaultBackoffBase is the delay before the second attempt of a source.
const DefaultBackoffBase = time.Second

var errNoUsableRates = errors.New("no usable rates in response")

// Attempt records a single try against a source.
type Attempt struct {
	Source   string        `json:"source"`
	Priority Priority      `json:"priority"`
	Number   int           `json:"number"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is a successful ingestion.
type Result struct {
	Base            string        `json:"base"`
	Rates           []RateData    `json:"rates"`
	Source          Priority      `json:"source"`
	SourceName      string        `json:"sourceName"`
	FetchedAt       time.Time     `json:"fetchedAt"`
	OldestTimestamp time.Time     `json:"oldestTimestamp"`
	AgeMinutes      float64       `json:"ageMinutes"`
	IsStale         bool          `json:"isStale"`
	Threshold       time.Duration `json:"threshold"`
	Attempts        []Attempt     `json:"attempts"`
}

// Rate returns the quote for target.
func (r Result) Rate(target string) (RateData, bool) {
	target = currency.Normalize(target)
	for _, rate := range r.Rates {
		if rate.ToCurrency == target {
			return rate, true
		}
	}
	return RateData{}, false
}

// Refresh recomputes staleness as of now.
func (r Result) Refresh(now time.Time, threshold time.Duration) Result {
	if threshold <= 0 {
		threshold = r.Threshold
	}
	r.Threshold = threshold
	r.OldestTimestamp, r.AgeMinutes, r.IsStale = Staleness(r.Rates, now, threshold)
	return r
}

// Observer receives ingestion outcomes, typically for metrics.
type Observer interface {
	ObserveFXIngestion(source, result string)
	ObserveFXRateAge(base string, ageMinutes float64)
}

// Ingestor runs ingestions. It holds no per-call state and is safe for
// concurrent use.
type Ingestor struct {
	fetcher  Fetcher
	sources  []Source
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	backoff  time.Duration
	observer Observer
	tracer   trace.Tracer
}

// NewIngestor builds an Ingestor. Nil sources use DefaultSources.
func NewIngestor(fetcher Fetcher, sources []Source, logger *slog.Logger) *Ingestor {
	if sources == nil {
		sources = DefaultSources()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		fetcher: fetcher,
		sources: ordered(sources),
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
		backoff: DefaultBackoffBase,
		tracer:  otel.Tracer("github.com/odyssey-erp/odyssey-posting/internal/fx"),
	}
}

// WithNow overrides the clock.
func (i *Ingestor) WithNow(now func() time.Time) {
	if now != nil {
		i.now = now
	}
}

// WithSleep overrides how backoff delays are waited out.
func (i *Ingestor) WithSleep(sleep func(ctx context.Context, d time.Duration) error) {
	if sleep != nil {
		i.sleep = sleep
	}
}

// WithBackoffBase sets the first retry delay; later delays double.
func (i *Ingestor) WithBackoffBase(d time.Duration) {
	if d > 0 {
		i.backoff = d
	}
}

// WithObserver attaches an outcome observer.
func (i *Ingestor) WithObserver(o Observer) {
	i.observer = o
}

// Sources returns the ordered source table.
func (i *Ingestor) Sources() []Source {
	return append([]Source(nil), i.sources...)
}

// Ingest fetches rates for base against targets. Sources are tried one after
// another, primary first; within a source attempts are retried with backoff.
func (i *Ingestor) Ingest(ctx context.Context, base string, targets []string, threshold time.Duration) (res Result, err error) {
	ctx, span := i.tracer.Start(ctx, "fx.ingest", trace.WithAttributes(attribute.String("fx.base", base)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(shared.CodeOf(err)))
		}
		span.End()
	}()

	base, targets, err = normalizeRequest(base, targets)
	if err != nil {
		return Result{}, err
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var (
		attempts []Attempt
		failures []error
	)
	for _, src := range i.sources {
		rates, tried, srcErr := i.trySource(ctx, src, base, targets)
		attempts = append(attempts, tried...)
		if srcErr == nil {
			now := i.now()
			res = Result{
				Base:       base,
				Rates:      rates,
				Source:     src.Priority,
				SourceName: src.Name,
				FetchedAt:  now,
				Threshold:  threshold,
				Attempts:   attempts,
			}
			res = res.Refresh(now, threshold)
			i.observe(src.Name, "success")
			if i.observer != nil {
				i.observer.ObserveFXRateAge(base, res.AgeMinutes)
			}
			if res.Source == PriorityFallback {
				i.logger.Warn("fx rates served by fallback source", slog.String("base", base), slog.String("source", src.Name))
			}
			if res.IsStale {
				i.logger.Warn("fx rates are stale", slog.String("base", base), slog.Float64("age_minutes", res.AgeMinutes), slog.Duration("threshold", threshold))
			}
			span.SetAttributes(attribute.String("fx.source", src.Name), attribute.Bool("fx.stale", res.IsStale))
			return res, nil
		}
		i.observe(src.Name, "failure")
		failures = append(failures, fmt.Errorf("%s (%s, %d attempts): %w", src.Name, src.Priority, len(tried), srcErr))
		if ctx.Err() != nil {
			break
		}
	}

	joined := errors.Join(failures...)
	messages := make([]string, len(failures))
	for idx, f := range failures {
		messages[idx] = f.Error()
	}
	allFailed := shared.Wrap(shared.CodeFXAllSourcesFailed, strings.Join(messages, "; "), joined)
	allFailed.Details = map[string]any{
		"base":     base,
		"errors":   messages,
		"attempts": len(attempts),
	}
	allFailed.Retryable = true
	i.logger.Error("fx ingestion failed on every source", slog.String("base", base), slog.Any("error", joined))
	return Result{}, allFailed
}

// trySource makes up to src.attempts() sequential attempts, waiting
// backoff*2^(n-1) before retry n.
func (i *Ingestor) trySource(ctx context.Context, src Source, base string, targets []string) ([]RateData, []Attempt, error) {
	var (
		tried   []Attempt
		lastErr error
	)
	for n := 1; n <= src.attempts(); n++ {
		if n > 1 {
			delay := i.backoff << (n - 2)
			if err := i.sleep(ctx, delay); err != nil {
				return nil, tried, errors.Join(lastErr, err)
			}
		}
		started := i.now()
		rates, err := i.attempt(ctx, src, base, targets, n)
		a := Attempt{Source: src.Name, Priority: src.Priority, Number: n, Duration: i.now().Sub(started)}
		if err == nil {
			tried = append(tried, a)
			return rates, tried, nil
		}
		a.Error = err.Error()
		tried = append(tried, a)
		lastErr = err
		i.logger.Debug("fx source attempt failed", slog.String("source", src.Name), slog.Int("attempt", n), slog.Any("error", err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, tried, lastErr
}

func (i *Ingestor) attempt(ctx context.Context, src Source, base string, targets []string, n int) (_ []RateData, err error) {
	ctx, span := i.tracer.Start(ctx, "fx.source.attempt", trace.WithAttributes(
		attribute.String("fx.source", src.Name),
		attribute.String("fx.priority", string(src.Priority)),
		attribute.Int("fx.attempt", n),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if src.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, src.Timeout)
		defer cancel()
	}
	body, err := i.fetcher.Fetch(ctx, src.URL(base, targets))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s: %w", src.Timeout, err)
		}
		return nil, err
	}
	rates := selectTargets(Parse(src.Format, src.Name, body, base, i.now()), targets)
	if len(rates) == 0 {
		return nil, errNoUsableRates
	}
	return rates, nil
}

func (i *Ingestor) observe(source, result string) {
	if i.observer != nil {
		i.observer.ObserveFXIngestion(source, result)
	}
}

func normalizeRequest(base string, targets []string) (string, []string, error) {
	nb, err := currency.ValidateCode(base)
	if err != nil {
		return "", nil, err
	}
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		nt, err := currency.ValidateCode(t)
		if err != nil {
			return "", nil, err
		}
		if nt == nb {
			continue
		}
		if _, ok := seen[nt]; ok {
			continue
		}
		seen[nt] = struct{}{}
		out = append(out, nt)
	}
	if len(out) == 0 {
		return "", nil, shared.NewError(shared.CodeInvalidFXRequest, "at least one target currency different from the base is required", map[string]any{
			"base": nb,
		})
	}
	sort.Strings(out)
	return nb, out, nil
}

func selectTargets(rates []RateData, targets []string) []RateData {
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		want[t] = struct{}{}
	}
	out := make([]RateData, 0, len(targets))
	for _, r := range rates {
		if _, ok := want[r.ToCurrency]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ToCurrency < out[b].ToCurrency })
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
