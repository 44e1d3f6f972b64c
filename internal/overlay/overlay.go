// Package overlay turns a route's station names into drawable geometry and
// keeps exactly one route overlay attached to the scene.
package overlay

import (
	"strconv"

	"github.com/rs/zerolog"

	"metroview/internal/geom"
	"metroview/internal/metrics"
	"metroview/internal/scene"
)

const (
	GradientID = "routeGradient"

	EndpointRadius  = 10.0
	ViaRadius       = 6.0
	BackgroundWidth = 14.0
	ForegroundWidth = 6.0
)

var gradientStops = []scene.GradientStop{
	{Offset: "0%", Color: "#667eea"},
	{Offset: "50%", Color: "#764ba2"},
	{Offset: "100%", Color: "#667eea"},
}

// Result describes what a render attached. Missing lists names that had no
// representation on the diagram, in path order.
type Result struct {
	Drawn    bool                `json:"drawn"`
	Overlay  scene.Overlay       `json:"overlay"`
	Resolved []geom.StationPoint `json:"resolved"`
	Missing  []string            `json:"missing,omitempty"`
}

type Renderer struct {
	scene   scene.Scene
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func New(s scene.Scene, log zerolog.Logger, m *metrics.Metrics) *Renderer {
	return &Renderer{scene: s, log: log, metrics: m}
}

// Render draws path, replacing any previous overlay.
func (r *Renderer) Render(path []string) Result {
	return r.RenderWithTransfers(path, nil)
}

// RenderWithTransfers draws path and marks each resolved station in
// transfers with a transfer indicator.
func (r *Renderer) RenderWithTransfers(path []string, transfers []string) Result {
	r.scene.ClearOverlay()

	var res Result
	for _, name := range path {
		p, ok := r.scene.Resolve(name)
		if !ok {
			res.Missing = append(res.Missing, name)
			continue
		}
		res.Resolved = append(res.Resolved, geom.StationPoint{Name: name, Point: p})
	}
	if len(res.Missing) > 0 {
		r.log.Debug().Strs("stations", res.Missing).Msg("stations without diagram representation skipped")
	}

	if len(res.Resolved) < 2 {
		r.metrics.ObserveOverlayRender(false, len(res.Missing))
		return res
	}

	res.Overlay = Build(res.Resolved, transfers)
	r.scene.DrawOverlay(res.Overlay)
	res.Drawn = true
	r.metrics.ObserveOverlayRender(true, len(res.Missing))
	return res
}

// Clear detaches the overlay, if any.
func (r *Renderer) Clear() {
	r.scene.ClearOverlay()
}

// Build lays out the overlay for already-resolved points.
func Build(pts []geom.StationPoint, transfers []string) scene.Overlay {
	o := scene.Overlay{
		Points: pts,
		Gradient: scene.Gradient{
			ID:    GradientID,
			Stops: append([]scene.GradientStop(nil), gradientStops...),
		},
	}

	cmds := make([]scene.PathCommand, 0, len(pts))
	for i, sp := range pts {
		op := byte(scene.OpLine)
		if i == 0 {
			op = scene.OpMove
		}
		cmds = append(cmds, scene.PathCommand{Op: op, Point: sp.Point})
	}
	o.Background = scene.Path{Class: "route-path-bg", Width: BackgroundWidth, Stroke: "rgba(255,255,255,0.85)", Commands: cmds}
	o.Foreground = scene.Path{Class: "route-path", Width: ForegroundWidth, Stroke: "url(#" + GradientID + ")", Commands: append([]scene.PathCommand(nil), cmds...)}

	last := len(pts) - 1
	for i, sp := range pts {
		m := scene.Marker{Index: i, Station: sp.Name, Point: sp.Point, Radius: ViaRadius, Role: scene.RoleVia}
		switch i {
		case 0:
			m.Radius, m.Role = EndpointRadius, scene.RoleStart
		case last:
			m.Radius, m.Role = EndpointRadius, scene.RoleEnd
		default:
			o.Labels = append(o.Labels, scene.Label{Index: i, Point: sp.Point, Text: strconv.Itoa(i)})
		}
		o.Markers = append(o.Markers, m)
	}

	if len(transfers) > 0 {
		want := make(map[string]struct{}, len(transfers))
		for _, name := range transfers {
			want[name] = struct{}{}
		}
		for _, sp := range pts {
			if _, ok := want[sp.Name]; !ok {
				continue
			}
			o.Transfers = append(o.Transfers, scene.TransferIndicator{Station: sp.Name, Point: sp.Point})
			delete(want, sp.Name)
		}
	}
	return o
}
