package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-posting/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-posting/internal/fx"
	"github.com/odyssey-erp/odyssey-posting/internal/observability"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/sod"
)

type stubRates struct {
	rate     float64
	priority fx.Priority
	err      error
	calls    int
}

func (s *stubRates) Rate(_ context.Context, from, to string) (fx.RateData, fx.Priority, error) {
	s.calls++
	if s.err != nil {
		return fx.RateData{}, "", s.err
	}
	return fx.RateData{FromCurrency: from, ToCurrency: to, Rate: s.rate}, s.priority, nil
}

type auditSink struct {
	entries []shared.AuditLog
}

func (a *auditSink) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func newPaymentsRouter(t *testing.T, rates RateLookup) (http.Handler, *Compiler, *auditSink) {
	t.Helper()
	c, _ := newCompiler(t)
	audit := &auditSink{}
	h := NewHandler(c, HandlerConfig{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Rates:        rates,
		Audit:        audit,
		Metrics:      observability.NewMetrics(),
		BaseCurrency: "MYR",
	})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, c, audit
}

func postCompile(t *testing.T, r http.Handler, req compileRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/compile", bytes.NewReader(body)))
	return rr
}

func TestHandlerCompileCustomerReceipt(t *testing.T) {
	r, _, audit := newPaymentsRouter(t, nil)

	rr := postCompile(t, r, compileRequest{Payment: customerPayment(1000, 1000), UserID: "user-1", UserRole: sod.RoleAccountant})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, "PAY-RCPT-0001", res.JournalNumber)
	require.True(t, res.Verdict.Validated)

	require.Len(t, audit.entries, 1)
	require.Equal(t, "payment.compile", audit.entries[0].Action)
	require.Equal(t, "p-1", audit.entries[0].EntityID)
	require.Equal(t, "compiled", audit.entries[0].Meta["result"])
}

func TestHandlerCompileUsesIngestedFallbackRate(t *testing.T) {
	rates := &stubRates{rate: 4.7215, priority: fx.PriorityFallback}
	r, c, _ := newPaymentsRouter(t, rates)
	c.banks.(*memLedger).accounts["gl-bank-usd"] = accounts.AccountInfo{ID: "gl-bank-usd", Code: "1010", Name: "Bank USD", IsActive: true}

	in := customerPayment(100.5, 100.5)
	in.Currency = "USD"
	in.BankAccountID = "bank-usd"
	rr := postCompile(t, r, compileRequest{Payment: in, UserID: "user-1", UserRole: sod.RoleAccountant})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, 1, rates.calls)
	require.Equal(t, 474.51, res.TotalAmount)
	require.Equal(t, RateFallback, res.FX.Source)
	require.True(t, res.RequiresApproval)
}

func TestHandlerCompileMissingRate(t *testing.T) {
	rates := &stubRates{err: shared.NewError(shared.CodeFXRatesNotFound, "none", nil)}
	r, c, audit := newPaymentsRouter(t, rates)
	c.banks.(*memLedger).accounts["gl-bank-usd"] = accounts.AccountInfo{ID: "gl-bank-usd", Code: "1010", Name: "Bank USD", IsActive: true}

	in := customerPayment(100, 100)
	in.Currency = "USD"
	in.BankAccountID = "bank-usd"
	rr := postCompile(t, r, compileRequest{Payment: in, UserID: "user-1", UserRole: sod.RoleAccountant})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), string(shared.CodeExchangeRateRequired))
	require.Equal(t, "rejected", audit.entries[0].Meta["result"])
}

func TestHandlerCompileRequiresActor(t *testing.T) {
	r, _, audit := newPaymentsRouter(t, nil)

	rr := postCompile(t, r, compileRequest{Payment: customerPayment(1000, 1000)})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "UserID")
	require.Empty(t, audit.entries)
}
