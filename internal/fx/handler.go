package fx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-posting/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-posting/internal/shared"
)

// IngestQueue schedules an asynchronous ingestion and returns its task ID.
type IngestQueue interface {
	EnqueueIngest(ctx context.Context, base string, targets []string, staleThreshold string) (string, error)
}

// Handler exposes ingestion triggers and the cached snapshots.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	queue     IngestQueue
	targets   []string
	threshold time.Duration
	validator *validator.Validate
}

// NewHandler constructs a Handler. Without a queue every ingestion runs
// synchronously. defaultTargets is used when a request names none.
func NewHandler(logger *slog.Logger, service *Service, queue IngestQueue, defaultTargets []string, defaultThreshold time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultThreshold
	}
	return &Handler{
		logger:    logger,
		service:   service,
		queue:     queue,
		targets:   defaultTargets,
		threshold: defaultThreshold,
		validator: validator.New(),
	}
}

// MountRoutes registers FX routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/ingest", h.ingest)
	r.Get("/rates/{base}", h.latest)
	r.Get("/rates/{base}/{quote}", h.rate)
}

type ingestRequest struct {
	Base           string   `json:"base" validate:"required,len=3"`
	Targets        []string `json:"targets,omitempty" validate:"omitempty,dive,len=3"`
	StaleThreshold string   `json:"staleThreshold,omitempty"`
}

type enqueuedResponse struct {
	TaskID  string   `json:"taskId"`
	Base    string   `json:"base"`
	Targets []string `json:"targets"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	threshold := h.threshold
	if req.StaleThreshold != "" {
		parsed, err := ParseThreshold(req.StaleThreshold)
		if err != nil {
			httpx.RespondError(w, shared.Wrap(shared.CodeInvalidFXRequest, "stale threshold must be a preset or a positive duration", err))
			return
		}
		threshold = parsed
	}
	targets := req.Targets
	if len(targets) == 0 {
		targets = h.targets
	}

	if h.queue != nil && r.URL.Query().Get("sync") != "1" {
		id, err := h.queue.EnqueueIngest(r.Context(), req.Base, targets, threshold.String())
		if err != nil {
			h.logger.Error("enqueue fx ingest", slog.String("base", req.Base), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, enqueuedResponse{TaskID: id, Base: req.Base, Targets: targets})
		return
	}

	res, err := h.service.Refresh(r.Context(), req.Base, targets, threshold)
	if err != nil {
		h.logger.Warn("fx ingest failed", slog.String("base", req.Base), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Latest(r.Context(), chi.URLParam(r, "base"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type rateResponse struct {
	RateData
	Priority Priority `json:"priority"`
}

func (h *Handler) rate(w http.ResponseWriter, r *http.Request) {
	quote, priority, err := h.service.Rate(r.Context(), chi.URLParam(r, "base"), chi.URLParam(r, "quote"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rateResponse{RateData: quote, Priority: priority})
}
