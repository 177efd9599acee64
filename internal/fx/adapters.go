package fx

import (
	"encoding/json"
	"strings"
	"time"
)

// RateData is one fetched quote. Rates are never mutated, only superseded by
// a later fetch.
type RateData struct {
	FromCurrency string     `json:"fromCurrency"`
	ToCurrency   string     `json:"toCurrency"`
	Rate         float64    `json:"rate"`
	Source       string     `json:"source"`
	Timestamp    time.Time  `json:"timestamp"`
	ValidFrom    time.Time  `json:"validFrom"`
	ValidTo      *time.Time `json:"validTo,omitempty"`
}

type adapter func(body []byte, base string, fetchedAt time.Time) (string, map[string]float64, time.Time)

var adapters = map[Format]adapter{
	FormatOpenERAPI:        parseOpenERAPI,
	FormatFrankfurter:      parseFrankfurter,
	FormatExchangeRateHost: parseExchangeRateHost,
}

// Parse decodes body with the adapter for format. Unknown formats, malformed
// bodies and responses for another base yield no rates.
func Parse(format Format, sourceName string, body []byte, base string, fetchedAt time.Time) []RateData {
	fn, ok := adapters[format]
	if !ok {
		return nil
	}
	respBase, rates, ts := fn(body, base, fetchedAt)
	if respBase != "" && !strings.EqualFold(respBase, base) {
		return nil
	}
	if ts.IsZero() {
		ts = fetchedAt
	}
	out := make([]RateData, 0, len(rates))
	for code, rate := range rates {
		if rate <= 0 {
			continue
		}
		out = append(out, RateData{
			FromCurrency: strings.ToUpper(base),
			ToCurrency:   strings.ToUpper(code),
			Rate:         rate,
			Source:       sourceName,
			Timestamp:    ts.UTC(),
			ValidFrom:    ts.UTC(),
		})
	}
	return out
}

func parseOpenERAPI(body []byte, _ string, _ time.Time) (string, map[string]float64, time.Time) {
	var payload struct {
		Result             string             `json:"result"`
		BaseCode           string             `json:"base_code"`
		TimeLastUpdateUnix int64              `json:"time_last_update_unix"`
		Rates              map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, time.Time{}
	}
	if payload.Result != "" && payload.Result != "success" {
		return "", nil, time.Time{}
	}
	var ts time.Time
	if payload.TimeLastUpdateUnix > 0 {
		ts = time.Unix(payload.TimeLastUpdateUnix, 0)
	}
	return payload.BaseCode, payload.Rates, ts
}

func parseFrankfurter(body []byte, _ string, _ time.Time) (string, map[string]float64, time.Time) {
	var payload struct {
		Base  string             `json:"base"`
		Date  string             `json:"date"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, time.Time{}
	}
	return payload.Base, payload.Rates, parseDate(payload.Date)
}

func parseExchangeRateHost(body []byte, _ string, _ time.Time) (string, map[string]float64, time.Time) {
	var payload struct {
		Success   *bool              `json:"success"`
		Base      string             `json:"base"`
		Source    string             `json:"source"`
		Date      string             `json:"date"`
		Timestamp int64              `json:"timestamp"`
		Rates     map[string]float64 `json:"rates"`
		Quotes    map[string]float64 `json:"quotes"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, time.Time{}
	}
	if payload.Success != nil && !*payload.Success {
		return "", nil, time.Time{}
	}
	base := payload.Base
	rates := payload.Rates
	if len(rates) == 0 && len(payload.Quotes) > 0 {
		// quotes are keyed by concatenated pair, e.g. USDMYR
		base = payload.Source
		rates = make(map[string]float64, len(payload.Quotes))
		for pair, v := range payload.Quotes {
			if len(pair) == 6 {
				rates[pair[3:]] = v
			}
		}
	}
	ts := parseDate(payload.Date)
	if payload.Timestamp > 0 {
		ts = time.Unix(payload.Timestamp, 0)
	}
	return base, rates, ts
}

func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
