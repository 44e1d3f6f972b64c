package scene

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"metroview/internal/geom"
)

const testDiagram = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1200 800">
  <g font-size="12">
    <circle id="A" cx="100" cy="200" r="5"/>
    <circle id="B" cx="300" cy="200" r="5"/>
    <text x="100" y="220" text-anchor="middle">A</text>
    <text x="500" y="150" text-anchor="middle">体育西路</text>
    <text x="640" y="150" text-anchor="middle"><tspan>珠江</tspan><tspan>新城</tspan></text>
    <rect id="C" x="10" y="10" width="4" height="4"/>
    <text x="700" y="300" text-anchor="middle"> C </text>
  </g>
</svg>`

func mustParse(t *testing.T, src string) *SVG {
	t.Helper()
	s, err := ParseSVG(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse svg: %v", err)
	}
	return s
}

func countByClass(s *SVG, class string) int {
	n := 0
	var visit func(el *etree.Element)
	visit = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			if hasClass(c, class) {
				n++
			}
			visit(c)
		}
	}
	visit(s.root)
	return n
}

func TestResolve_PrefersMarkerCoordinates(t *testing.T) {
	s := mustParse(t, testDiagram)

	p, ok := s.Resolve("A")
	if !ok {
		t.Fatalf("expected A to resolve")
	}
	if p != (geom.Point{X: 100, Y: 200}) {
		t.Fatalf("expected marker coordinate (100,200), got %+v", p)
	}
}

func TestResolve_FallsBackToLabelAnchor(t *testing.T) {
	s := mustParse(t, testDiagram)

	p, ok := s.Resolve("体育西路")
	if !ok {
		t.Fatalf("expected label-only station to resolve")
	}
	if p.X != 500 {
		t.Fatalf("expected horizontal center 500, got %v", p.X)
	}
	if p.Y >= 150 || p.Y <= 150-12 {
		t.Fatalf("expected top of label box within one em above baseline, got %v", p.Y)
	}

	again, _ := s.Resolve("体育西路")
	if again != p {
		t.Fatalf("expected deterministic resolution, got %+v then %+v", p, again)
	}
}

func TestResolve_IDWithoutCoordinatesUsesLabel(t *testing.T) {
	s := mustParse(t, testDiagram)

	p, ok := s.Resolve("C")
	if !ok {
		t.Fatalf("expected C to resolve through its trimmed label")
	}
	if p.X != 700 {
		t.Fatalf("expected label center 700, got %v", p.X)
	}
}

func TestResolve_ConcatenatesTspans(t *testing.T) {
	s := mustParse(t, testDiagram)

	p, ok := s.Resolve("珠江新城")
	if !ok {
		t.Fatalf("expected tspan label to resolve")
	}
	_, ascent := s.metrics.Measure("珠江新城", 12)
	if want := geom.Pt(640, 150-ascent); !p.Near(want, 1e-9) {
		t.Fatalf("expected anchor %+v from the enclosing text, got %+v", want, p)
	}
}

const tspanDiagram = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1200 800">
  <text font-size="12"><tspan x="500" y="300">体育西路</tspan></text>
  <text font-size="12" x="500" y="300">公园前</text>
  <text font-size="12" text-anchor="middle"><tspan x="800" y="400">天河</tspan><tspan x="800" y="414">客运站</tspan></text>
</svg>`

func TestResolve_TspanPosition(t *testing.T) {
	s := mustParse(t, tspanDiagram)
	_, ascent := s.metrics.Measure("体育西路", 12)

	p, ok := s.Resolve("体育西路")
	if !ok {
		t.Fatalf("expected tspan-positioned label to resolve")
	}
	// Four wide runes at 12 units each, start-anchored at x=500.
	if want := geom.Pt(524, 300-ascent); !p.Near(want, 1e-9) {
		t.Fatalf("expected anchor %+v, got %+v", want, p)
	}

	q, ok := s.Resolve("公园前")
	if !ok {
		t.Fatalf("expected text-positioned label to resolve")
	}
	if want := geom.Pt(518, 300-ascent); !q.Near(want, 1e-9) {
		t.Fatalf("expected anchor %+v, got %+v", want, q)
	}
}

func TestResolve_MultiLineTspans(t *testing.T) {
	s := mustParse(t, tspanDiagram)
	_, ascent := s.metrics.Measure("天河", 12)

	p, ok := s.Resolve("天河客运站")
	if !ok {
		t.Fatalf("expected two-line label to resolve")
	}
	if want := geom.Pt(800, 400-ascent); !p.Near(want, 1e-9) {
		t.Fatalf("expected top centre of the first line %+v, got %+v", want, p)
	}
}

func TestResolve_UnknownName(t *testing.T) {
	s := mustParse(t, testDiagram)

	if p, ok := s.Resolve("nowhere"); ok {
		t.Fatalf("expected miss, got %+v", p)
	}
	if _, ok := s.Resolve(""); ok {
		t.Fatalf("expected empty name to miss")
	}
}

func sampleOverlay() Overlay {
	a, b, c := geom.Pt(100, 200), geom.Pt(300, 200), geom.Pt(500, 140)
	return Overlay{
		Points:     []geom.StationPoint{{Name: "A", Point: a}, {Name: "B", Point: b}, {Name: "X", Point: c}},
		Background: Path{Class: "route-path-bg", Width: 14, Stroke: "#fff", Commands: []PathCommand{{Op: OpMove, Point: a}, {Op: OpLine, Point: b}, {Op: OpLine, Point: c}}},
		Foreground: Path{Class: "route-path", Width: 6, Stroke: "url(#routeGradient)", Commands: []PathCommand{{Op: OpMove, Point: a}, {Op: OpLine, Point: b}, {Op: OpLine, Point: c}}},
		Gradient:   Gradient{ID: "routeGradient", Stops: []GradientStop{{Offset: "0%", Color: "#667eea"}, {Offset: "100%", Color: "#667eea"}}},
		Markers: []Marker{
			{Index: 0, Station: "A", Point: a, Radius: 10, Role: RoleStart},
			{Index: 1, Station: "B", Point: b, Radius: 6, Role: RoleVia},
			{Index: 2, Station: "X", Point: c, Radius: 10, Role: RoleEnd},
		},
		Labels:    []Label{{Index: 1, Point: b, Text: "1"}},
		Transfers: []TransferIndicator{{Station: "B", Point: b}},
	}
}

func TestDrawOverlay_ReplacesPreviousOverlay(t *testing.T) {
	s := mustParse(t, testDiagram)

	s.DrawOverlay(sampleOverlay())
	s.DrawOverlay(sampleOverlay())

	if n := countByClass(s, OverlayClass); n != 1 {
		t.Fatalf("expected exactly one overlay group, got %d", n)
	}

	gradients := 0
	s.walk(func(el *etree.Element) bool {
		if el.Tag == "linearGradient" && el.SelectAttrValue("id", "") == "routeGradient" {
			gradients++
		}
		return true
	})
	if gradients != 1 {
		t.Fatalf("expected a single gradient definition, got %d", gradients)
	}

	out, err := s.Bytes()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	body := string(out)
	if got := strings.Count(body, `class="route-dot`); got != 3 {
		t.Fatalf("expected 3 markers in output, got %d", got)
	}
	if !strings.Contains(body, `d="M 100 200 L 300 200 L 500 140"`) {
		t.Fatalf("expected polyline path data in output:\n%s", body)
	}
	if !strings.Contains(body, `class="route-transfer"`) {
		t.Fatalf("expected transfer indicator in output")
	}
}

func TestOverlayIsInvisibleToResolve(t *testing.T) {
	s := mustParse(t, testDiagram)
	s.DrawOverlay(sampleOverlay())

	if _, ok := s.Resolve("1"); ok {
		t.Fatalf("expected sequence labels of the overlay to be ignored by Resolve")
	}
}

func TestClearOverlay_Idempotent(t *testing.T) {
	s := mustParse(t, testDiagram)

	s.ClearOverlay()
	s.DrawOverlay(sampleOverlay())
	s.ClearOverlay()
	s.ClearOverlay()

	if n := countByClass(s, OverlayClass); n != 0 {
		t.Fatalf("expected no overlay after clear, got %d", n)
	}
}

func TestHighlights(t *testing.T) {
	s := mustParse(t, testDiagram)

	s.DrawHighlight(Highlight{Role: RoleStart, Station: "A", Point: geom.Pt(100, 200)})
	s.DrawHighlight(Highlight{Role: RoleEnd, Station: "B", Point: geom.Pt(300, 200)})
	if n := countByClass(s, HighlightClass); n != 2 {
		t.Fatalf("expected 2 highlight badges, got %d", n)
	}
	if _, ok := s.Resolve("起点"); ok {
		t.Fatalf("expected highlight badge text to be ignored by Resolve")
	}

	s.ClearHighlights()
	if n := countByClass(s, HighlightClass); n != 0 {
		t.Fatalf("expected highlights cleared, got %d", n)
	}
}

func TestNaturalSize(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want geom.Size
	}{
		{"viewBox", testDiagram, geom.Size{W: 1200, H: 800}},
		{"viewBox commas", `<svg viewBox="0,0,640,480"/>`, geom.Size{W: 640, H: 480}},
		{"width height", `<svg width="900px" height="600"><circle cx="1" cy="1" r="1"/></svg>`, geom.Size{W: 900, H: 600}},
		{"content bounds", `<svg><circle cx="50" cy="60" r="10"/><rect x="100" y="20" width="20" height="100"/></svg>`, geom.Size{W: 80, H: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := mustParse(t, tc.src)
			if got := s.NaturalSize(); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestParseSVG_RejectsOtherRoots(t *testing.T) {
	if _, err := ParseSVG(strings.NewReader(`<html/>`)); !errors.Is(err, ErrNotSVG) {
		t.Fatalf("expected ErrNotSVG, got %v", err)
	}
}

func TestReady_ResolvesOnce(t *testing.T) {
	r := NewReady()
	if r.IsReady() {
		t.Fatalf("expected not ready before resolve")
	}

	s := mustParse(t, testDiagram)
	if !r.Resolve(s, nil) {
		t.Fatalf("expected first resolve to win")
	}
	if r.Resolve(nil, errors.New("late")) {
		t.Fatalf("expected second resolve to be ignored")
	}

	got, err := r.Wait(context.Background())
	if err != nil || got != s {
		t.Fatalf("expected resolved diagram, got %v %v", got, err)
	}
	if !r.IsReady() {
		t.Fatalf("expected ready")
	}
}

func TestReady_WaitHonoursContext(t *testing.T) {
	r := NewReady()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseLength(t *testing.T) {
	cases := map[string]float64{"12": 12, "12.5px": 12.5, " -3 ": -3, "1em": 1}
	for in, want := range cases {
		got, ok := parseLength(in)
		if !ok || got != want {
			t.Fatalf("parseLength(%q) = %v,%v want %v", in, got, ok, want)
		}
	}
	if _, ok := parseLength("auto"); ok {
		t.Fatalf("expected auto to be rejected")
	}
}
