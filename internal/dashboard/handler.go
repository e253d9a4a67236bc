package dashboard

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/domain"
	"github.com/vilaca/reciprocity-bot/internal/metrics"
)

// Handler serves the read-only status endpoints.
type Handler struct {
	set             *domain.TrackedSet
	gracePeriodDays int
	renderer        Renderer
	metrics         *metrics.Metrics
	clock           clock.Clock
	logger          *slog.Logger
}

// HandlerConfig holds configuration for creating a new Handler.
type HandlerConfig struct {
	Set             *domain.TrackedSet
	GracePeriodDays int
	Renderer        Renderer         // defaults to JSON
	Metrics         *metrics.Metrics // optional; enables /metrics
	Clock           clock.Clock
	Logger          *slog.Logger
}

// NewHandler creates a new Handler with injected dependencies.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		set:             cfg.Set,
		gracePeriodDays: cfg.GracePeriodDays,
		renderer:        cfg.Renderer,
		metrics:         cfg.Metrics,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
	}
	if h.renderer == nil {
		h.renderer = NewJSONRenderer()
	}
	if h.clock == nil {
		h.clock = clock.Real()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tracked", h.handleTracked)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics.Handler())
	}
}

// handleHealth serves the health check endpoint.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, func(buf *bytes.Buffer) error {
		return h.renderer.RenderHealth(buf, h.set.Len())
	})
}

// handleTracked lists pending engagements with their age.
func (h *Handler) handleTracked(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	h.render(w, r, func(buf *bytes.Buffer) error {
		status := BuildStatus(h.set.Snapshot(), h.clock.Now(), h.gracePeriodDays)
		return h.renderer.RenderStatus(buf, status)
	})
}

// render buffers the body so a failed render can still send a 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, fn func(*bytes.Buffer) error) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		h.logger.Error("failed to render response", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if _, ok := h.renderer.(*TextRenderer); ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write(buf.Bytes())
}
