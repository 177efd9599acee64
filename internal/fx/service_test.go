package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

type stubIngester struct {
	res Result
	err error
}

func (s stubIngester) Ingest(context.Context, string, []string, time.Duration) (Result, error) {
	return s.res, s.err
}

type memoryHistory struct {
	saved []Result
	err   error
}

func (m *memoryHistory) SaveRates(_ context.Context, res Result) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, res)
	return nil
}

func TestServiceRefreshPersists(t *testing.T) {
	store, _ := newTestStore(t)
	history := &memoryHistory{}
	res := sampleResult(time.Now().UTC())
	svc := NewService(stubIngester{res: res}, store, history, nil)

	got, err := svc.Refresh(context.Background(), "USD", []string{"MYR"}, 0)
	require.NoError(t, err)
	require.Equal(t, "USD", got.Base)
	require.Len(t, history.saved, 1)

	latest, err := svc.Latest(context.Background(), "USD")
	require.NoError(t, err)
	require.Equal(t, res.SourceName, latest.SourceName)
}

func TestServiceRefreshToleratesHistoryFailure(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewService(stubIngester{res: sampleResult(time.Now().UTC())}, store, &memoryHistory{err: errors.New("db down")}, nil)

	_, err := svc.Refresh(context.Background(), "USD", []string{"MYR"}, 0)
	require.NoError(t, err)
}

func TestServiceRefreshPropagatesIngestError(t *testing.T) {
	failed := shared.NewError(shared.CodeFXAllSourcesFailed, "all down", nil)
	history := &memoryHistory{}
	svc := NewService(stubIngester{err: failed}, nil, history, nil)

	_, err := svc.Refresh(context.Background(), "USD", []string{"MYR"}, 0)
	require.Equal(t, shared.CodeFXAllSourcesFailed, shared.CodeOf(err))
	require.Empty(t, history.saved)
}
