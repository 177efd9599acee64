package posting

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-posting/internal/observability"
	"github.com/odyssey-erp/odyssey-posting/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// Handler exposes journal validation over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     shared.AuditRecorder
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler. A nil audit recorder discards entries.
func NewHandler(logger *slog.Logger, service *Service, audit shared.AuditRecorder, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	return &Handler{
		logger:    logger,
		service:   service,
		audit:     audit,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/validate", h.validate)
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	verdict, err := h.service.ValidatePosting(r.Context(), req)
	var code shared.Code
	if err != nil {
		err = shared.Internal(err)
		code = shared.CodeOf(err)
	}
	h.metrics.ObservePostingValidation("journal", string(code))
	h.record(r.Context(), req, verdict, code)
	if err != nil {
		if code == shared.CodeInternal {
			h.logger.Error("journal validation failed", slog.String("journal", req.JournalNumber), slog.Any("error", err))
		} else {
			h.logger.Info("journal rejected", slog.String("journal", req.JournalNumber), slog.String("code", string(code)))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, verdict)
}

func (h *Handler) record(ctx context.Context, req Request, verdict Verdict, code shared.Code) {
	meta := map[string]any{
		"currency": req.Currency,
		"lines":    len(req.Lines),
	}
	if code != "" {
		meta["result"] = "rejected"
		meta["code"] = string(code)
	} else {
		meta["result"] = "validated"
		meta["requiresApproval"] = verdict.RequiresApproval
		meta["totalDebit"] = verdict.TotalDebit
	}
	entry := shared.AuditLog{
		TenantID: req.Context.TenantID,
		ActorID:  req.Context.UserID,
		Action:   "journal.validate",
		Entity:   "journal",
		EntityID: req.JournalNumber,
		Meta:     meta,
	}
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
