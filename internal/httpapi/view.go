package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"metroview/internal/geom"
	"metroview/internal/session"
	"metroview/internal/viewport"
)

type pointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type sizeRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type zoomRequest struct {
	Action string `json:"action"`
}

type wheelRequest struct {
	DeltaY float64 `json:"delta_y"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type pointerDownRequest struct {
	Target string  `json:"target"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type pickRequest struct {
	Element string  `json:"element"`
	ID      string  `json:"id,omitempty"`
	Text    string  `json:"text,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

type inputsRequest struct {
	Start *string `json:"start,omitempty"`
	End   *string `json:"end,omitempty"`
}

type strategyRequest struct {
	Strategy string `json:"strategy"`
}

// respond writes the snapshot of a session operation or maps its error.
func (h *Handler) respond(w http.ResponseWriter, status int, snap session.Snapshot, err error) {
	switch {
	case err == nil:
		h.writeJSON(w, status, snap)
	case errors.Is(err, session.ErrNotStation):
		// Clicking anything that is not a station just closes the popup.
		h.writeJSON(w, http.StatusOK, snap)
	case errors.Is(err, session.ErrNotReady):
		h.writeError(w, http.StatusServiceUnavailable, "diagram_unavailable", "diagram not loaded", nil)
	case errors.Is(err, session.ErrSearchInProgress):
		h.writeError(w, http.StatusConflict, "search_in_progress", "a route search is already outstanding", map[string]any{"token": snap.Token})
	case errors.Is(err, session.ErrNoPopup):
		h.writeError(w, http.StatusConflict, "no_selection", "no station is selected", nil)
	case errors.Is(err, session.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusServiceUnavailable, "session_unavailable", "viewer session not running", nil)
	default:
		h.log.Error().Err(err).Msg("view operation failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "view operation failed", nil)
	}
}

func (h *Handler) invalidBody(w http.ResponseWriter, err error) {
	h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
}

func (h *Handler) handleListStations(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	names := h.viewer.Stations()
	if names == nil {
		names = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"stations": names})
}

func (h *Handler) handleGetStation(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	adj, ok := h.viewer.Station(name)
	if !ok {
		h.writeError(w, http.StatusNotFound, "station_not_found", "unknown station", map[string]any{"name": name})
		return
	}
	if adj == nil {
		adj = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"name": name, "neighbours": adj})
}

func (h *Handler) handleGetView(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.Snapshot(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handleGetDiagram(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	b, err := h.viewer.Diagram(r.Context())
	if err != nil {
		h.respond(w, http.StatusOK, session.Snapshot{}, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *Handler) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureViewer(w) {
		return
	}

	var (
		snap session.Snapshot
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "in":
		snap, err = h.viewer.ZoomIn(r.Context())
	case "out":
		snap, err = h.viewer.ZoomOut(r.Context())
	case "reset":
		snap, err = h.viewer.ResetZoom(r.Context())
	default:
		h.writeError(w, http.StatusBadRequest, "validation_failed", "action must be one of in, out, reset", map[string]any{"action": req.Action})
		return
	}
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handleWheel(w http.ResponseWriter, r *http.Request) {
	var req wheelRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.Wheel(r.Context(), req.DeltaY, geom.Pt(req.X, req.Y))
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.Scroll(r.Context(), geom.Pt(req.X, req.Y))
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handleResize(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "width and height must be positive", nil)
		return
	}
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.Resize(r.Context(), geom.Size{W: req.Width, H: req.Height})
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handlePointerDown(w http.ResponseWriter, r *http.Request) {
	var req pointerDownRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.PointerDown(r.Context(), viewport.ParseTarget(req.Target), geom.Pt(req.X, req.Y))
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handlePointerMove(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.PointerMove(r.Context(), geom.Pt(req.X, req.Y))
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handlePointerUp(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.PointerUp(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handlePick(w http.ResponseWriter, r *http.Request) {
	var req pickRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.Pick(r.Context(), session.Pick{
		Element: req.Element,
		ID:      req.ID,
		Text:    req.Text,
		Pointer: geom.Pt(req.X, req.Y),
	})
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handlePopupLayout(w http.ResponseWriter, r *http.Request) {
	var req sizeRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.LayoutPopup(r.Context(), geom.Size{W: req.Width, H: req.Height})
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handlePopupStart(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.UseAsStart(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handlePopupEnd(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.UseAsEnd(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handlePopupCancel(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.CancelPopup(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handleSetInputs(w http.ResponseWriter, r *http.Request) {
	var req inputsRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if req.Start == nil && req.End == nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "start or end is required", nil)
		return
	}
	if !h.ensureViewer(w) {
		return
	}

	var (
		snap session.Snapshot
		err  error
	)
	if req.Start != nil {
		snap, err = h.viewer.SetStart(r.Context(), *req.Start)
	}
	if err == nil && req.End != nil {
		snap, err = h.viewer.SetEnd(r.Context(), *req.End)
	}
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handleSwap(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.Swap(r.Context())
	h.respond(w, http.StatusOK, snap, err)
}

func (h *Handler) handleSetStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.SelectStrategy(r.Context(), req.Strategy)
	h.respond(w, http.StatusOK, snap, err)
}

// handleSearch answers 202 while the request is outstanding; validation
// messages come back with 200 and no request issued.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !h.ensureViewer(w) {
		return
	}
	snap, err := h.viewer.Search(r.Context())
	status := http.StatusOK
	if snap.Searching {
		status = http.StatusAccepted
	}
	h.respond(w, status, snap, err)
}
