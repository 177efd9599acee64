package payments

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-posting/internal/currency"
	"github.com/odyssey-erp/odyssey-posting/internal/fx"
	"github.com/odyssey-erp/odyssey-posting/internal/observability"
	"github.com/odyssey-erp/odyssey-posting/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
	"github.com/odyssey-erp/odyssey-posting/internal/sod"
)

// RateLookup resolves an ingested exchange rate.
type RateLookup interface {
	Rate(ctx context.Context, from, to string) (fx.RateData, fx.Priority, error)
}

// Handler exposes payment compilation over HTTP.
type Handler struct {
	logger       *slog.Logger
	compiler     *Compiler
	rates        RateLookup
	audit        shared.AuditRecorder
	metrics      *observability.Metrics
	baseCurrency string
	validator    *validator.Validate
}

// HandlerConfig groups the optional collaborators of a Handler.
type HandlerConfig struct {
	Logger       *slog.Logger
	Rates        RateLookup
	Audit        shared.AuditRecorder
	Metrics      *observability.Metrics
	BaseCurrency string
}

// NewHandler constructs a Handler.
func NewHandler(compiler *Compiler, cfg HandlerConfig) *Handler {
	h := &Handler{
		logger:       cfg.Logger,
		compiler:     compiler,
		rates:        cfg.Rates,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		baseCurrency: cfg.BaseCurrency,
		validator:    validator.New(),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.audit == nil {
		h.audit = shared.NopAuditRecorder{}
	}
	return h
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/compile", h.compile)
}

type compileRequest struct {
	Payment      Input    `json:"payment"`
	UserID       string   `json:"userId" validate:"required"`
	UserRole     sod.Role `json:"userRole" validate:"required"`
	BaseCurrency string   `json:"baseCurrency,omitempty"`
}

func (h *Handler) compile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	base := req.BaseCurrency
	if base == "" {
		base = h.baseCurrency
	}
	in := req.Payment
	h.applyIngestedRate(r.Context(), &in, base)

	res, err := h.compiler.Compile(r.Context(), in, req.UserID, req.UserRole, base)
	var code shared.Code
	if err != nil {
		err = shared.Internal(err)
		code = shared.CodeOf(err)
	}
	h.metrics.ObservePostingValidation("payment", string(code))
	h.record(r.Context(), req.UserID, in, res, code)
	if err != nil {
		if code == shared.CodeInternal {
			h.logger.Error("payment compilation failed", slog.String("payment", in.PaymentID), slog.Any("error", err))
		} else {
			h.logger.Info("payment rejected", slog.String("payment", in.PaymentID), slog.String("code", string(code)))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

// applyIngestedRate fills a missing exchange rate from the latest ingested
// snapshot. When no rate is available the payment is left untouched so the
// compiler reports the missing rate.
func (h *Handler) applyIngestedRate(ctx context.Context, in *Input, base string) {
	if h.rates == nil || in.ExchangeRate != nil {
		return
	}
	if currency.Normalize(in.Currency) == currency.Normalize(base) {
		return
	}
	quote, priority, err := h.rates.Rate(ctx, in.Currency, base)
	if err != nil {
		if shared.CodeOf(err) != shared.CodeFXRatesNotFound {
			h.logger.Warn("fx rate lookup failed", slog.String("from", in.Currency), slog.String("to", base), slog.Any("error", err))
		}
		return
	}
	rate := quote.Rate
	in.ExchangeRate = &rate
	in.ExchangeRateSource = RatePrimary
	if priority == fx.PriorityFallback {
		in.ExchangeRateSource = RateFallback
	}
}

func (h *Handler) record(ctx context.Context, actor string, in Input, res Result, code shared.Code) {
	meta := map[string]any{
		"currency": in.Currency,
		"amount":   in.Amount,
	}
	if code != "" {
		meta["result"] = "rejected"
		meta["code"] = string(code)
	} else {
		meta["result"] = "compiled"
		meta["journalNumber"] = res.JournalNumber
		meta["requiresApproval"] = res.RequiresApproval
		meta["lines"] = len(res.Lines)
	}
	entry := shared.AuditLog{
		TenantID: in.TenantID,
		ActorID:  actor,
		Action:   "payment.compile",
		Entity:   "payment",
		EntityID: in.PaymentID,
		Meta:     meta,
	}
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
