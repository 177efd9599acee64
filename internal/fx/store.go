package fx

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-posting/internal/currency"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

const (
	storeKeyPrefix = "fx:latest"
	storeReadLimit = 3 * time.Second
)

// Store keeps the latest ingestion result per base currency in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group
}

// NewStore instantiates the store. A zero ttl keeps entries until replaced.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// WithNow overrides the clock used to refresh staleness on read.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func storeKey(base string) string {
	return strings.Join([]string{storeKeyPrefix, currency.Normalize(base)}, ":")
}

// Save replaces the latest result for res.Base.
func (s *Store) Save(ctx context.Context, res Result) error {
	if s == nil || s.client == nil {
		return errors.New("fx: store not initialised")
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, storeKey(res.Base), raw, s.ttl).Err()
}

// Latest loads the most recent result for base with staleness recomputed.
// Concurrent reads of the same base share one Redis round trip.
func (s *Store) Latest(ctx context.Context, base string) (Result, error) {
	if s == nil || s.client == nil {
		return Result{}, errors.New("fx: store not initialised")
	}
	key := storeKey(base)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.load(ctx, key)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-ch:
		if errors.Is(out.Err, redis.Nil) {
			return Result{}, shared.NewError(shared.CodeFXRatesNotFound, "no exchange rates have been ingested for this base currency", map[string]any{
				"base": currency.Normalize(base),
			})
		}
		if out.Err != nil {
			return Result{}, out.Err
		}
		res := out.Val.(Result)
		return res.Refresh(s.now(), res.Threshold), nil
	}
}

// load reads one snapshot on behalf of every caller waiting on key, so it
// ignores the cancellation of whichever caller started it.
func (s *Store) load(ctx context.Context, key string) (Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeReadLimit)
	defer cancel()
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Rate resolves from→to using the direct quote, or the inverse of the
// to→from quote when only that was ingested.
func (s *Store) Rate(ctx context.Context, from, to string) (RateData, Priority, error) {
	from, to = currency.Normalize(from), currency.Normalize(to)
	if from == to {
		return RateData{FromCurrency: from, ToCurrency: to, Rate: 1, Source: "parity", Timestamp: s.now(), ValidFrom: s.now()}, PriorityPrimary, nil
	}
	direct, err := s.Latest(ctx, from)
	if err == nil {
		if rate, ok := direct.Rate(to); ok {
			return rate, direct.Source, nil
		}
	} else if shared.CodeOf(err) != shared.CodeFXRatesNotFound {
		return RateData{}, "", err
	}
	inverse, err := s.Latest(ctx, to)
	if err == nil {
		if rate, ok := inverse.Rate(from); ok {
			return RateData{
				FromCurrency: from,
				ToCurrency:   to,
				Rate:         1 / rate.Rate,
				Source:       rate.Source,
				Timestamp:    rate.Timestamp,
				ValidFrom:    rate.ValidFrom,
				ValidTo:      rate.ValidTo,
			}, inverse.Source, nil
		}
	} else if shared.CodeOf(err) != shared.CodeFXRatesNotFound {
		return RateData{}, "", err
	}
	return RateData{}, "", shared.NewError(shared.CodeFXRatesNotFound, "no exchange rate is available for this currency pair", map[string]any{
		"from": from,
		"to":   to,
	})
}
