package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"metroview/internal/metrics"
	"metroview/internal/session"
)

type Options struct {
	CORSOrigins []string
}

type Handler struct {
	log     zerolog.Logger
	viewer  *session.Viewer
	metrics *metrics.Metrics
	opts    Options
}

func NewHandler(log zerolog.Logger, viewer *session.Viewer, m *metrics.Metrics, opts Options) *Handler {
	return &Handler{log: log, viewer: viewer, metrics: m, opts: opts}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestIDHeader)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)
	if len(h.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/stations", h.handleListStations)
			r.Get("/stations/{name}", h.handleGetStation)

			r.Route("/view", func(r chi.Router) {
				r.Get("/", h.handleGetView)
				r.Get("/diagram.svg", h.handleGetDiagram)

				r.Post("/zoom", h.handleZoom)
				r.Post("/wheel", h.handleWheel)
				r.Post("/scroll", h.handleScroll)
				r.Post("/resize", h.handleResize)
				r.Route("/pointer", func(r chi.Router) {
					r.Post("/down", h.handlePointerDown)
					r.Post("/move", h.handlePointerMove)
					r.Post("/up", h.handlePointerUp)
				})

				r.Post("/pick", h.handlePick)
				r.Route("/popup", func(r chi.Router) {
					r.Post("/layout", h.handlePopupLayout)
					r.Post("/start", h.handlePopupStart)
					r.Post("/end", h.handlePopupEnd)
					r.Post("/cancel", h.handlePopupCancel)
				})

				r.Put("/inputs", h.handleSetInputs)
				r.Post("/swap", h.handleSwap)
				r.Put("/strategy", h.handleSetStrategy)
				r.Post("/search", h.handleSearch)
			})
		})
	})

	return r
}

func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		h.metrics.ObserveHTTPRequest(r.Method, path, ww.Status(), elapsed)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if !h.ensureViewer(w) {
		return
	}

	snap, err := h.viewer.Snapshot(ctx)
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "session_unavailable", "viewer session not running", map[string]any{"error": err.Error()})
		return
	}
	if !snap.Ready {
		h.writeError(w, http.StatusServiceUnavailable, "diagram_unavailable", "diagram not loaded", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureViewer(w http.ResponseWriter) bool {
	if h.viewer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "session_unavailable", "viewer session not configured", nil)
		return false
	}
	return true
}
