package fx

import (
	"sort"
	"strings"
	"time"
)

// Priority marks whether a source is the preferred one or a fallback.
type Priority string

const (
	PriorityPrimary  Priority = "primary"
	PriorityFallback Priority = "fallback"
)

// Format selects the adapter used to decode a source's response.
type Format string

const (
	FormatOpenERAPI        Format = "open_er_api"
	FormatFrankfurter      Format = "frankfurter"
	FormatExchangeRateHost Format = "exchangerate_host"
)

// Source is one configured rate provider. Endpoint may contain {base} and
// {targets} placeholders.
type Source struct {
	Name       string        `json:"name"`
	Priority   Priority      `json:"priority"`
	Endpoint   string        `json:"endpoint"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"maxRetries"`
	Format     Format        `json:"format"`
}

// URL expands the endpoint template for a request.
func (s Source) URL(base string, targets []string) string {
	r := strings.NewReplacer("{base}", base, "{targets}", strings.Join(targets, ","))
	return r.Replace(s.Endpoint)
}

func (s Source) attempts() int {
	if s.MaxRetries < 1 {
		return 1
	}
	return s.MaxRetries
}

// DefaultSources returns the built-in provider table, primary first.
func DefaultSources() []Source {
	return []Source{
		{
			Name:       "open.er-api",
			Priority:   PriorityPrimary,
			Endpoint:   "https://open.er-api.com/v6/latest/{base}",
			Timeout:    10 * time.Second,
			MaxRetries: 3,
			Format:     FormatOpenERAPI,
		},
		{
			Name:       "frankfurter",
			Priority:   PriorityFallback,
			Endpoint:   "https://api.frankfurter.app/latest?from={base}&to={targets}",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
			Format:     FormatFrankfurter,
		},
		{
			Name:       "exchangerate.host",
			Priority:   PriorityFallback,
			Endpoint:   "https://api.exchangerate.host/latest?base={base}&symbols={targets}",
			Timeout:    15 * time.Second,
			MaxRetries: 2,
			Format:     FormatExchangeRateHost,
		},
	}
}

// ordered returns sources with every primary ahead of every fallback,
// keeping configuration order within a priority.
func ordered(sources []Source) []Source {
	out := append([]Source(nil), sources...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority == PriorityPrimary && out[j].Priority != PriorityPrimary
	})
	return out
}
