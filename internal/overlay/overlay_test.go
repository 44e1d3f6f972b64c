package overlay

import (
	"io"
	"testing"

	"github.com/rs/zerolog"

	"metroview/internal/geom"
	"metroview/internal/scene"
)

type fakeScene struct {
	points   map[string]geom.Point
	attached []scene.Overlay
	clears   int
	draws    int
}

func (f *fakeScene) Resolve(name string) (geom.Point, bool) {
	p, ok := f.points[name]
	return p, ok
}

func (f *fakeScene) ClearOverlay() {
	f.clears++
	f.attached = nil
}

func (f *fakeScene) DrawOverlay(o scene.Overlay) {
	f.draws++
	f.attached = append(f.attached, o)
}

func newFakeScene() *fakeScene {
	return &fakeScene{points: map[string]geom.Point{
		"A": {X: 100, Y: 100},
		"B": {X: 200, Y: 100},
		"C": {X: 200, Y: 300},
		"D": {X: 400, Y: 300},
	}}
}

func newRenderer(s scene.Scene) *Renderer {
	return New(s, zerolog.New(io.Discard), nil)
}

func TestRender_ThreeStationsWithTransfer(t *testing.T) {
	s := newFakeScene()
	r := newRenderer(s)

	res := r.RenderWithTransfers([]string{"A", "B", "C"}, []string{"B"})
	if !res.Drawn {
		t.Fatalf("expected overlay drawn")
	}
	o := res.Overlay
	if len(o.Markers) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(o.Markers))
	}
	if got := o.Foreground.Segments(); got != 2 {
		t.Fatalf("expected 2 path segments, got %d", got)
	}
	if got := o.Background.Segments(); got != 2 {
		t.Fatalf("expected background to follow the same 2 segments, got %d", got)
	}
	if len(o.Transfers) != 1 || o.Transfers[0].Station != "B" || o.Transfers[0].Point != (geom.Point{X: 200, Y: 100}) {
		t.Fatalf("expected one transfer indicator at B, got %+v", o.Transfers)
	}
	if len(s.attached) != 1 {
		t.Fatalf("expected one attached overlay, got %d", len(s.attached))
	}
}

func TestRender_MarkerRolesAndLabels(t *testing.T) {
	r := newRenderer(newFakeScene())

	o := r.Render([]string{"A", "B", "C", "D"}).Overlay

	start, end := o.Markers[0], o.Markers[3]
	if start.Role != scene.RoleStart || start.Radius != EndpointRadius {
		t.Fatalf("unexpected start marker %+v", start)
	}
	if end.Role != scene.RoleEnd || end.Radius != EndpointRadius {
		t.Fatalf("unexpected end marker %+v", end)
	}
	for _, m := range o.Markers[1:3] {
		if m.Role != scene.RoleVia || m.Radius != ViaRadius {
			t.Fatalf("unexpected intermediate marker %+v", m)
		}
		if m.Radius >= EndpointRadius {
			t.Fatalf("expected intermediate radius below endpoint radius")
		}
	}

	if len(o.Labels) != 2 {
		t.Fatalf("expected labels on the 2 intermediate points, got %d", len(o.Labels))
	}
	if o.Labels[0].Text != "1" || o.Labels[1].Text != "2" {
		t.Fatalf("expected 1-based sequence labels, got %+v", o.Labels)
	}
	if o.Foreground.D() != "M 100 100 L 200 100 L 200 300 L 400 300" {
		t.Fatalf("unexpected path data %q", o.Foreground.D())
	}
	if o.Gradient.ID != GradientID || len(o.Gradient.Stops) != 3 {
		t.Fatalf("expected 3-stop %s gradient, got %+v", GradientID, o.Gradient)
	}
	if o.Foreground.Stroke != "url(#routeGradient)" {
		t.Fatalf("expected foreground stroked by gradient, got %q", o.Foreground.Stroke)
	}
	if o.Background.Width <= o.Foreground.Width {
		t.Fatalf("expected background wider than foreground")
	}
}

func TestRender_SkipsUnresolvedStations(t *testing.T) {
	r := newRenderer(newFakeScene())

	res := r.Render([]string{"A", "ghost", "B", "C"})
	if !res.Drawn {
		t.Fatalf("expected overlay over resolvable stations")
	}
	if len(res.Missing) != 1 || res.Missing[0] != "ghost" {
		t.Fatalf("expected ghost reported missing, got %v", res.Missing)
	}
	names := []string{}
	for _, sp := range res.Overlay.Points {
		names = append(names, sp.Name)
	}
	if len(names) != 3 || names[0] != "A" || names[1] != "B" || names[2] != "C" {
		t.Fatalf("expected order A,B,C preserved, got %v", names)
	}
	if res.Overlay.Labels[0].Text != "1" {
		t.Fatalf("expected labels indexed along the resolved path, got %+v", res.Overlay.Labels)
	}
}

func TestRender_FewerThanTwoPointsClears(t *testing.T) {
	cases := map[string][]string{
		"empty":      nil,
		"single":     {"A"},
		"unresolved": {"ghost", "A", "phantom"},
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			s := newFakeScene()
			r := newRenderer(s)
			r.Render([]string{"A", "B"})

			res := r.Render(path)
			if res.Drawn {
				t.Fatalf("expected nothing drawn")
			}
			if len(s.attached) != 0 {
				t.Fatalf("expected previous overlay cleared, got %d attached", len(s.attached))
			}
		})
	}
}

func TestRender_TwiceKeepsOneOverlay(t *testing.T) {
	s := newFakeScene()
	r := newRenderer(s)

	r.Render([]string{"A", "B", "C"})
	r.Render([]string{"A", "B", "C"})

	if len(s.attached) != 1 {
		t.Fatalf("expected exactly one overlay attached, got %d", len(s.attached))
	}
	if s.clears != 2 || s.draws != 2 {
		t.Fatalf("expected clear before every draw, got clears=%d draws=%d", s.clears, s.draws)
	}
}

func TestRender_AgainstSVGScene(t *testing.T) {
	svg, err := scene.LoadSVG("../../testdata/diagram.svg")
	if err != nil {
		t.Fatalf("load diagram: %v", err)
	}
	r := newRenderer(svg)

	r.Render([]string{"A", "B", "C"})
	first, err := svg.Bytes()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	r.Render([]string{"A", "B", "C"})
	second, err := svg.Bytes()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected re-render to leave an identical document")
	}
}
