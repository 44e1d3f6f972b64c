// Package session owns the state of one viewer: the loaded diagram, its
// viewport, the route overlay, the selection popup and the search inputs.
//
// Every mutation runs on the session's event loop. The route request is the
// only asynchronous boundary; its result is posted back onto the loop and
// applied only if it answers the most recent request.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"metroview/internal/geom"
	"metroview/internal/lines"
	"metroview/internal/metrics"
	"metroview/internal/overlay"
	"metroview/internal/popup"
	"metroview/internal/routeclient"
	"metroview/internal/scene"
	"metroview/internal/stations"
	"metroview/internal/viewport"
)

var (
	ErrNotReady         = errors.New("diagram not ready")
	ErrSearchInProgress = errors.New("search already in progress")
	ErrNoPopup          = errors.New("no station selected")
	ErrNotStation       = errors.New("pick target is not a station")
)

// RouteService answers route queries. *routeclient.Client satisfies it.
type RouteService interface {
	Route(ctx context.Context, start, end, strategy string) (routeclient.Result, error)
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityLoading Severity = "loading"
	SeveritySuccess Severity = "success"
)

const (
	msgMissingInputs = "请选择起点和终点。"
	msgSameStation   = "起点和终点相同，无需路线。"
	msgSearching     = "正在搜索最优路线..."
	msgNoPath        = "未找到路径，请检查站名。"
	msgRetry         = "请求失败，请重试。"
)

type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

type Options struct {
	DefaultStrategy string
	Container       geom.Size
	SmoothScroll    time.Duration
	FrameInterval   time.Duration
	Now             func() time.Time
}

// Snapshot is a copy of the viewer state for the shell to render.
type Snapshot struct {
	ID        string          `json:"id"`
	Ready     bool            `json:"ready"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	Strategy  string          `json:"strategy"`
	Searching bool            `json:"searching"`
	Token     uint64          `json:"token"`
	Message   Message         `json:"message"`
	Summary   *lines.Summary  `json:"summary,omitempty"`
	Route     []string        `json:"route,omitempty"`
	Missing   []string        `json:"missing,omitempty"`
	Viewport  *viewport.State `json:"viewport,omitempty"`
	Popup     popup.State     `json:"popup"`
}

// Pick describes a click on a diagram element.
type Pick struct {
	Element string     `json:"element"`
	ID      string     `json:"id,omitempty"`
	Text    string     `json:"text,omitempty"`
	Pointer geom.Point `json:"pointer"`
}

type Viewer struct {
	id       string
	log      zerolog.Logger
	metrics  *metrics.Metrics
	routes   RouteService
	stations *stations.Index
	ready    *scene.Ready
	opts     Options
	loop     *Loop

	// Set by Run before the loop starts; used for route requests.
	baseCtx context.Context

	// Owned by the loop goroutine.
	svg       *scene.SVG
	view      *viewport.Controller
	renderer  *overlay.Renderer
	popup     popup.Positioner
	start     string
	end       string
	strategy  string
	searching bool
	token     uint64
	message   Message
	summary   *lines.Summary
	route     []string
	missing   []string
}

func New(log zerolog.Logger, routes RouteService, idx *stations.Index, ready *scene.Ready, opts Options, m *metrics.Metrics) *Viewer {
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = routeclient.DefaultStrategy
	}
	id := uuid.NewString()
	v := &Viewer{
		id:       id,
		log:      log.With().Str("session", id).Logger(),
		metrics:  m,
		routes:   routes,
		stations: idx,
		ready:    ready,
		opts:     opts,
		strategy: opts.DefaultStrategy,
		baseCtx:  context.Background(),
	}
	v.loop = NewLoop(opts.FrameInterval, v.frame)
	return v
}

func (v *Viewer) ID() string { return v.id }

// Run drives the event loop until ctx ends. The diagram is attached once the
// ready signal resolves; diagram events fail with ErrNotReady until then.
func (v *Viewer) Run(ctx context.Context) {
	v.baseCtx = ctx
	go func() {
		svg, err := v.ready.Wait(ctx)
		if err != nil {
			if ctx.Err() == nil {
				v.log.Error().Err(err).Msg("diagram failed to load")
			}
			return
		}
		v.loop.Post(func() { v.attach(svg) })
	}()
	v.loop.Run(ctx)
}

func (v *Viewer) attach(svg *scene.SVG) {
	if v.svg != nil {
		return
	}
	v.svg = svg
	v.renderer = overlay.New(svg, v.log, v.metrics)
	v.view = viewport.New(svg.NaturalSize(), v.opts.Container, viewport.Options{
		SmoothScroll: v.opts.SmoothScroll,
		Now:          v.opts.Now,
	})
	v.view.OnScroll(func(geom.Point) { v.dismissPopup(popup.DismissScroll) })
	v.view.OnResize(func(geom.Size) { v.dismissPopup(popup.DismissResize) })
	v.refreshHighlights()

	v.log.Info().
		Float64("natural_width", svg.NaturalSize().W).
		Float64("natural_height", svg.NaturalSize().H).
		Msg("diagram attached")
}

func (v *Viewer) dismissPopup(reason popup.DismissReason) {
	name, ok := v.popup.Dismiss(reason)
	if !ok {
		return
	}
	v.log.Debug().Str("station", name).Str("reason", string(reason)).Msg("popup dismissed")
}

func (v *Viewer) frame(now time.Time) {
	if v.view != nil {
		v.view.Frame(now)
	}
}

// do runs fn on the loop and returns the resulting snapshot.
func (v *Viewer) do(ctx context.Context, needDiagram bool, fn func() error) (Snapshot, error) {
	var (
		snap Snapshot
		ferr error
	)
	err := v.loop.Do(ctx, func() {
		if needDiagram && v.svg == nil {
			ferr = ErrNotReady
		} else if fn != nil {
			ferr = fn()
		}
		snap = v.snapshot()
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, ferr
}

func (v *Viewer) snapshot() Snapshot {
	s := Snapshot{
		ID:        v.id,
		Ready:     v.svg != nil,
		Start:     v.start,
		End:       v.end,
		Strategy:  v.strategy,
		Searching: v.searching,
		Token:     v.token,
		Message:   v.message,
		Popup:     v.popup.State(),
	}
	if v.summary != nil {
		sum := *v.summary
		s.Summary = &sum
	}
	s.Route = append(s.Route, v.route...)
	s.Missing = append(s.Missing, v.missing...)
	if v.view != nil {
		st := v.view.State()
		s.Viewport = &st
	}
	return s
}

func (v *Viewer) Snapshot(ctx context.Context) (Snapshot, error) {
	return v.do(ctx, false, nil)
}

func (v *Viewer) SetStart(ctx context.Context, name string) (Snapshot, error) {
	return v.do(ctx, false, func() error {
		v.start = strings.TrimSpace(name)
		v.refreshHighlights()
		return nil
	})
}

func (v *Viewer) SetEnd(ctx context.Context, name string) (Snapshot, error) {
	return v.do(ctx, false, func() error {
		v.end = strings.TrimSpace(name)
		v.refreshHighlights()
		return nil
	})
}

func (v *Viewer) Swap(ctx context.Context) (Snapshot, error) {
	return v.do(ctx, false, func() error {
		v.start, v.end = v.end, v.start
		v.refreshHighlights()
		return nil
	})
}

// SelectStrategy stores the strategy token as given; the route service
// interprets it.
func (v *Viewer) SelectStrategy(ctx context.Context, strategy string) (Snapshot, error) {
	return v.do(ctx, false, func() error {
		strategy = strings.TrimSpace(strategy)
		if strategy == "" {
			strategy = v.opts.DefaultStrategy
		}
		v.strategy = strategy
		return nil
	})
}

// Search validates the inputs and issues a route request. The search
// control stays disabled until the request completes.
func (v *Viewer) Search(ctx context.Context) (Snapshot, error) {
	return v.do(ctx, false, func() error {
		if v.searching {
			return ErrSearchInProgress
		}
		v.search()
		return nil
	})
}

func (v *Viewer) search() {
	if v.start == "" || v.end == "" {
		v.message = Message{Severity: SeverityWarning, Text: msgMissingInputs}
		return
	}
	if v.start == v.end {
		v.message = Message{Severity: SeverityInfo, Text: msgSameStation}
		return
	}

	v.token++
	token := v.token
	start, end, strategy := v.start, v.end, v.strategy
	requestID := uuid.NewString()

	v.searching = true
	v.message = Message{Severity: SeverityLoading, Text: msgSearching}
	v.log.Debug().
		Uint64("token", token).
		Str("request_id", requestID).
		Str("start", start).
		Str("end", end).
		Str("strategy", strategy).
		Msg("route search issued")

	ctx := v.baseCtx
	go func() {
		res, err := v.routes.Route(ctx, start, end, strategy)
		v.loop.Post(func() { v.complete(token, requestID, res, err) })
	}()
}

func (v *Viewer) complete(token uint64, requestID string, res routeclient.Result, err error) {
	if token != v.token {
		v.metrics.IncStaleResponse()
		v.log.Debug().
			Uint64("token", token).
			Uint64("current", v.token).
			Str("request_id", requestID).
			Msg("stale route response discarded")
		return
	}
	v.searching = false

	var te *routeclient.TransportError
	switch {
	case err == nil:
		v.applyRoute(res)
	case errors.Is(err, routeclient.ErrRouteNotFound):
		v.clearRoute()
		v.message = Message{Severity: SeverityError, Text: msgNoPath}
	case errors.As(err, &te):
		v.message = Message{Severity: SeverityError, Text: msgRetry}
	default:
		v.log.Warn().Err(err).Str("request_id", requestID).Msg("route request failed")
		v.message = Message{Severity: SeverityError, Text: msgRetry}
	}
}

func (v *Viewer) applyRoute(res routeclient.Result) {
	sum := lines.Summarize(res)
	v.summary = &sum
	v.route = append([]string(nil), res.Route...)
	v.message = Message{
		Severity: SeveritySuccess,
		Text:     fmt.Sprintf("%d 站，%d 次换乘", sum.Stations, sum.Transfers),
	}

	v.missing = nil
	if v.renderer == nil {
		return
	}
	out := v.renderer.RenderWithTransfers(res.Route, lines.TransferStations(res.Segments))
	v.missing = out.Missing
	if out.Drawn {
		v.view.CenterOn(geom.Points(out.Resolved))
	}
}

func (v *Viewer) clearRoute() {
	v.summary = nil
	v.route = nil
	v.missing = nil
	if v.renderer != nil {
		v.renderer.Clear()
	}
}

func (v *Viewer) refreshHighlights() {
	if v.svg == nil {
		return
	}
	v.svg.ClearHighlights()
	if p, ok := v.svg.Resolve(v.start); ok {
		v.svg.DrawHighlight(scene.Highlight{Role: scene.RoleStart, Station: v.start, Point: p})
	}
	if p, ok := v.svg.Resolve(v.end); ok {
		v.svg.DrawHighlight(scene.Highlight{Role: scene.RoleEnd, Station: v.end, Point: p})
	}
}

// Stations lists the known station names for input suggestions.
func (v *Viewer) Stations() []string {
	return v.stations.Names()
}

// Station reports whether name is a known station and lists its neighbours.
func (v *Viewer) Station(name string) ([]string, bool) {
	if !v.stations.Contains(name) {
		return nil, false
	}
	return v.stations.Neighbours(name), true
}
