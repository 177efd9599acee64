package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-posting/internal/currency"
	"github.com/odyssey-erp/odyssey-posting/internal/fx"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// Exit codes shared by the FX commands.
const (
	ExitOK    = 0
	ExitError = 1
	ExitStale = 10
)

// FXService is the slice of fx.Service used by the CLI.
type FXService interface {
	Refresh(ctx context.Context, base string, targets []string, threshold time.Duration) (fx.Result, error)
	Latest(ctx context.Context, base string) (fx.Result, error)
}

// FXOpsCLI runs FX ingestion and inspects cached snapshots.
type FXOpsCLI struct {
	service FXService
	now     func() time.Time
}

// NewFXOpsCLI constructs the helper around an FX service.
func NewFXOpsCLI(service FXService) (*FXOpsCLI, error) {
	if service == nil {
		return nil, errors.New("fx cli: service is required")
	}
	return &FXOpsCLI{service: service, now: func() time.Time { return time.Now().UTC() }}, nil
}

// FXIngestOptions configures a single ingestion run.
type FXIngestOptions struct {
	Base           string
	Targets        []string
	StaleThreshold string
	JSONOutput     bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// FXRatesOptions configures the snapshot inspection command.
type FXRatesOptions struct {
	Base           string
	StaleThreshold string
	JSONOutput     bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// FXSummary is the machine-readable output of both commands.
type FXSummary struct {
	Base       string       `json:"base"`
	Source     string       `json:"source"`
	Priority   fx.Priority  `json:"priority"`
	FetchedAt  time.Time    `json:"fetchedAt"`
	AgeMinutes float64      `json:"ageMinutes"`
	Stale      bool         `json:"stale"`
	Threshold  string       `json:"threshold"`
	Rates      []FXRateLine `json:"rates"`
	Attempts   int          `json:"attempts,omitempty"`
}

// FXRateLine is one quote in a summary.
type FXRateLine struct {
	Quote     string    `json:"quote"`
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestCommand refreshes rates for one base and returns the process exit
// code: 0 on fresh rates, 10 when the accepted rates are stale, 1 on error.
func (c *FXOpsCLI) IngestCommand(ctx context.Context, opts FXIngestOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	base := currency.Normalize(opts.Base)
	if !currency.WellFormed(base) {
		_, _ = fmt.Fprintf(opts.Stderr, "fx ingest: invalid base currency %q\n", opts.Base)
		return ExitError
	}
	targets := make([]string, 0, len(opts.Targets))
	for _, t := range opts.Targets {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, currency.Normalize(t))
		}
	}
	if len(targets) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "fx ingest: at least one target currency is required")
		return ExitError
	}
	threshold, err := fx.ParseThreshold(opts.StaleThreshold)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx ingest: %v\n", err)
		return ExitError
	}

	res, err := c.service.Refresh(ctx, base, targets, threshold)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx ingest: %s\n", describe(err))
		return ExitError
	}
	return c.report(opts.Stdout, opts.Stderr, "fx ingest", res, opts.JSONOutput)
}

// RatesCommand prints the cached snapshot for a base with staleness
// recomputed as of now. Exit codes follow IngestCommand.
func (c *FXOpsCLI) RatesCommand(ctx context.Context, opts FXRatesOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	base := currency.Normalize(opts.Base)
	if !currency.WellFormed(base) {
		_, _ = fmt.Fprintf(opts.Stderr, "fx rates: invalid base currency %q\n", opts.Base)
		return ExitError
	}
	res, err := c.service.Latest(ctx, base)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "fx rates: %s\n", describe(err))
		return ExitError
	}
	if opts.StaleThreshold != "" {
		threshold, err := fx.ParseThreshold(opts.StaleThreshold)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "fx rates: %v\n", err)
			return ExitError
		}
		res = res.Refresh(c.now(), threshold)
	}
	return c.report(opts.Stdout, opts.Stderr, "fx rates", res, opts.JSONOutput)
}

// Run dispatches `fx ingest` and `fx rates` from raw arguments.
func (c *FXOpsCLI) Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	stdout, stderr = writers(stdout, stderr)
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: odyssey fx <ingest|rates> [flags]")
		return ExitError
	}
	fs := flag.NewFlagSet("fx "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	base := fs.String("base", "", "base currency (ISO 4217)")
	threshold := fs.String("stale-threshold", "", "warning, critical or a Go duration")
	jsonOut := fs.Bool("json", false, "emit JSON")

	switch args[0] {
	case "ingest":
		targets := fs.String("targets", "", "comma-separated target currencies")
		if err := fs.Parse(args[1:]); err != nil {
			return ExitError
		}
		return c.IngestCommand(ctx, FXIngestOptions{
			Base:           *base,
			Targets:        strings.Split(*targets, ","),
			StaleThreshold: *threshold,
			JSONOutput:     *jsonOut,
			Stdout:         stdout,
			Stderr:         stderr,
		})
	case "rates":
		if err := fs.Parse(args[1:]); err != nil {
			return ExitError
		}
		return c.RatesCommand(ctx, FXRatesOptions{
			Base:           *base,
			StaleThreshold: *threshold,
			JSONOutput:     *jsonOut,
			Stdout:         stdout,
			Stderr:         stderr,
		})
	default:
		_, _ = fmt.Fprintf(stderr, "fx: unknown command %q\n", args[0])
		return ExitError
	}
}

func (c *FXOpsCLI) report(stdout, stderr io.Writer, name string, res fx.Result, jsonOut bool) int {
	summary := summarize(res)
	if jsonOut {
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "%s: encode json: %v\n", name, err)
			return ExitError
		}
	} else {
		writeHuman(stdout, summary)
	}
	if summary.Stale {
		return ExitStale
	}
	return ExitOK
}

func summarize(res fx.Result) FXSummary {
	lines := make([]FXRateLine, 0, len(res.Rates))
	for _, rate := range res.Rates {
		lines = append(lines, FXRateLine{Quote: rate.ToCurrency, Rate: rate.Rate, Timestamp: rate.Timestamp})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Quote < lines[j].Quote })
	return FXSummary{
		Base:       res.Base,
		Source:     res.SourceName,
		Priority:   res.Source,
		FetchedAt:  res.FetchedAt,
		AgeMinutes: res.AgeMinutes,
		Stale:      res.IsStale,
		Threshold:  res.Threshold.String(),
		Rates:      lines,
		Attempts:   len(res.Attempts),
	}
}

func writeHuman(out io.Writer, s FXSummary) {
	_, _ = fmt.Fprintf(out, "FX rates for %s from %s (%s), fetched %s\n", s.Base, s.Source, s.Priority, s.FetchedAt.Format(time.RFC3339))
	for _, line := range s.Rates {
		_, _ = fmt.Fprintf(out, " - %s/%s %.6f (%s)\n", s.Base, line.Quote, line.Rate, line.Timestamp.Format(time.RFC3339))
	}
	status := "fresh"
	if s.Stale {
		status = "STALE"
	}
	_, _ = fmt.Fprintf(out, "Oldest quote is %.0f minute(s) old, threshold %s: %s\n", s.AgeMinutes, s.Threshold, status)
}

func describe(err error) string {
	var coded *shared.Error
	if errors.As(err, &coded) {
		return fmt.Sprintf("%s: %s", coded.Code, coded.Message)
	}
	return err.Error()
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return stdout, stderr
}
