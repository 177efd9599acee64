package sod

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-posting/internal/observability"
	"github.com/odyssey-erp/odyssey-posting/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// Handler exposes access decisions over HTTP. A denial is a normal 200
// response carrying the decision.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	audit     shared.AuditRecorder
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs a Handler. A nil engine uses the default rules.
func NewHandler(logger *slog.Logger, engine *Engine, audit shared.AuditRecorder, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = NewEngine(nil)
	}
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	return &Handler{logger: logger, engine: engine, audit: audit, metrics: metrics, validator: validator.New()}
}

// MountRoutes registers access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/decide", h.decide)
	r.Post("/check", h.check)
	r.Get("/rules/{action}", h.rule)
}

type decideRequest struct {
	User    UserContext     `json:"user"`
	Action  Action          `json:"action" validate:"required"`
	Context ActionContext   `json:"context"`
	Flags   FeatureFlags    `json:"featureFlags"`
	Policy  *PolicySettings `json:"policy,omitempty"`
}

type checkRequest struct {
	Action      Action `json:"action" validate:"required"`
	Role        Role   `json:"role" validate:"required"`
	CreatorRole Role   `json:"creatorRole,omitempty"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	decision := h.engine.Decide(req.User, req.Action, req.Context, req.Flags, req.Policy)
	h.observe(r.Context(), req.User.TenantID, req.User.ID, decision)
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	decision := h.engine.CheckCompliance(req.Action, req.Role, req.CreatorRole)
	h.metrics.ObserveSoDDecision(string(decision.Action), string(decision.Outcome))
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) rule(w http.ResponseWriter, r *http.Request) {
	action := Action(chi.URLParam(r, "action"))
	rule, ok := h.engine.Rule(action)
	if !ok {
		httpx.RespondError(w, shared.NewError(shared.CodeInvalidRequest, "unknown action", map[string]any{"action": string(action)}))
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) observe(ctx context.Context, tenantID, actorID string, d Decision) {
	h.metrics.ObserveSoDDecision(string(d.Action), string(d.Outcome))
	entry := shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   "access.decide",
		Entity:   "access_decision",
		EntityID: uuid.NewString(),
		Meta: map[string]any{
			"action":           string(d.Action),
			"outcome":          string(d.Outcome),
			"reasonCode":       string(d.ReasonCode),
			"requiresApproval": d.RequiresApproval,
		},
	}
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.Warn("audit record failed", slog.String("action", entry.Action), slog.Any("error", err))
	}
}
