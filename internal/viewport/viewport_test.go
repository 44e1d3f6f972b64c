package viewport

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"metroview/internal/geom"
)

const eps = 1e-9

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) time.Time {
	f.t = f.t.Add(d)
	return f.t
}

func newTestController(clock *fakeClock) *Controller {
	opts := Options{SmoothScroll: 300 * time.Millisecond}
	if clock != nil {
		opts.Now = clock.Now
	}
	c := New(geom.Size{W: 2000, H: 1500}, geom.Size{W: 800, H: 600}, opts)
	c.SetScroll(geom.Pt(300, 200))
	return c
}

func TestZoomBy_KeepsAnchorFixed(t *testing.T) {
	c := newTestController(nil)
	anchor := geom.Pt(400, 300)
	before := c.State().ContentAt(anchor)

	if !c.ZoomBy(ButtonStep, anchor) {
		t.Fatalf("expected zoom to apply")
	}
	after := c.State().ContentAt(anchor)
	if !before.Near(after, eps) {
		t.Fatalf("expected content under anchor to stay %+v, got %+v", before, after)
	}
	if got := c.Scroll(); !got.Near(geom.Pt(440, 300), eps) {
		t.Fatalf("expected scroll (440,300), got %+v", got)
	}
}

func TestZoomBy_NoOpAtBounds(t *testing.T) {
	c := newTestController(nil)
	for i := 0; i < 20; i++ {
		c.ZoomIn()
	}
	if c.Scale() != MaxScale {
		t.Fatalf("expected scale pinned at %v, got %v", MaxScale, c.Scale())
	}
	scroll := c.Scroll()
	if c.ZoomIn() {
		t.Fatalf("expected zoom in at max to be a no-op")
	}
	if c.Scroll() != scroll {
		t.Fatalf("expected scroll untouched by no-op zoom")
	}
}

func TestZoomSequence_StaysInBoundsAndKeepsAnchor(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := New(geom.Size{W: 20000, H: 20000}, geom.Size{W: 800, H: 600}, Options{})
	c.SetScroll(geom.Pt(6000, 6000))

	for i := 0; i < 500; i++ {
		anchor := geom.Pt(rng.Float64()*800, rng.Float64()*600)
		delta := (rng.Float64() - 0.5) * 1.5

		st := c.State()
		before := st.ContentAt(anchor)
		newScale := geom.Clamp(st.Scale+delta, MinScale, MaxScale)
		raw := st.Scroll.Add(anchor).Mul(newScale / st.Scale).Sub(anchor)

		c.ZoomBy(delta, anchor)

		if s := c.Scale(); s < MinScale || s > MaxScale {
			t.Fatalf("step %d: scale %v left [%v,%v]", i, s, MinScale, MaxScale)
		}
		max := c.State().MaxScroll()
		clamped := raw.X < 0 || raw.Y < 0 || raw.X > max.X || raw.Y > max.Y
		if clamped {
			continue
		}
		after := c.State().ContentAt(anchor)
		if !before.Near(after, 1e-6) {
			t.Fatalf("step %d: anchor drifted from %+v to %+v", i, before, after)
		}
	}
}

// Scroll offsets cannot leave [0, displayed-container], so a zoom whose
// anchor-preserving offset falls outside that range pins to the edge and the
// anchored content shifts.
func TestZoomOut_ClampsAtEdges(t *testing.T) {
	c := New(geom.Size{W: 2000, H: 1500}, geom.Size{W: 800, H: 600}, Options{})
	center := geom.Pt(400, 300)

	c.ZoomOut()

	if got := c.Scroll(); got != (geom.Point{}) {
		t.Fatalf("expected scroll pinned at origin instead of (-80,-60), got %+v", got)
	}
	if got := c.State().ContentAt(center); !got.Near(geom.Pt(500, 375), eps) {
		t.Fatalf("expected content (500,375) under the center after clamping, got %+v", got)
	}

	c = New(geom.Size{W: 2000, H: 1500}, geom.Size{W: 800, H: 600}, Options{})
	c.SetScroll(geom.Pt(1200, 900))
	c.ZoomOut()

	if got := c.Scroll(); !got.Near(geom.Pt(800, 600), eps) {
		t.Fatalf("expected scroll pinned at max (800,600) instead of (880,660), got %+v", got)
	}
	if got := c.State().MaxScroll(); !got.Near(geom.Pt(800, 600), eps) {
		t.Fatalf("expected max scroll (800,600), got %+v", got)
	}
}

func TestNew_EmptyNaturalSizeUsesContainer(t *testing.T) {
	c := New(geom.Size{}, geom.Size{W: 800, H: 600}, Options{})

	if got := c.State().Natural; got != (geom.Size{W: 800, H: 600}) {
		t.Fatalf("expected natural size of the container, got %+v", got)
	}
	if got := c.State().MaxScroll(); got != (geom.Point{}) {
		t.Fatalf("expected no scroll range, got %+v", got)
	}
}

func TestScrollTo_SubPixelJumps(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := newTestController(clock)

	c.ScrollTo(geom.Pt(300.2, 200.1), true)

	if c.State().Animating {
		t.Fatalf("expected sub-pixel scroll to apply without animation")
	}
	if got := c.Scroll(); !got.Near(geom.Pt(300.2, 200.1), eps) {
		t.Fatalf("expected scroll (300.2,200.1), got %+v", got)
	}
}

func TestButtonZoom_AnchorsAtContainerCenter(t *testing.T) {
	c := newTestController(nil)
	center := geom.Pt(400, 300)
	before := c.State().ContentAt(center)

	c.ZoomOut()

	if math.Abs(c.Scale()-0.8) > eps {
		t.Fatalf("expected scale 0.8, got %v", c.Scale())
	}
	if after := c.State().ContentAt(center); !before.Near(after, eps) {
		t.Fatalf("expected center content %+v, got %+v", before, after)
	}
}

func TestWheel_DefersScrollCorrectionToNextFrame(t *testing.T) {
	c := newTestController(nil)
	cursor := geom.Pt(100, 50)
	before := c.State().ContentAt(cursor)

	if !c.Wheel(-120, cursor) {
		t.Fatalf("expected wheel up to zoom in")
	}
	if math.Abs(c.Scale()-1.15) > eps {
		t.Fatalf("expected scale 1.15 applied immediately, got %v", c.Scale())
	}
	if c.Scroll() != geom.Pt(300, 200) {
		t.Fatalf("expected scroll untouched before frame, got %+v", c.Scroll())
	}
	if c.Frames().Len() != 1 {
		t.Fatalf("expected one queued frame callback, got %d", c.Frames().Len())
	}

	c.Frame(time.Now())

	if after := c.State().ContentAt(cursor); !before.Near(after, 1e-9) {
		t.Fatalf("expected cursor content %+v after frame, got %+v", before, after)
	}
}

func TestWheel_CoalescesWithinOneFrame(t *testing.T) {
	c := newTestController(nil)
	cursor := geom.Pt(100, 50)
	before := c.State().ContentAt(cursor)

	c.Wheel(-1, cursor)
	c.Wheel(-1, cursor)
	if c.Frames().Len() != 1 {
		t.Fatalf("expected a single queued correction, got %d", c.Frames().Len())
	}
	c.Frame(time.Now())

	if math.Abs(c.Scale()-1.3) > 1e-9 {
		t.Fatalf("expected scale 1.3, got %v", c.Scale())
	}
	if after := c.State().ContentAt(cursor); !before.Near(after, 1e-9) {
		t.Fatalf("expected cursor content %+v, got %+v", before, after)
	}
}

func TestWheel_DownZoomsOutAndStopsAtMin(t *testing.T) {
	c := newTestController(nil)
	for i := 0; i < 10; i++ {
		c.Wheel(120, geom.Pt(10, 10))
		c.Frame(time.Now())
	}
	if c.Scale() != MinScale {
		t.Fatalf("expected scale %v, got %v", MinScale, c.Scale())
	}
	if c.Wheel(120, geom.Pt(10, 10)) {
		t.Fatalf("expected wheel at min to be a no-op")
	}
}

func TestReset_SmoothlyReturnsToOrigin(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := newTestController(clock)
	c.ZoomIn()
	c.ZoomIn()

	c.Reset()
	if c.Scale() != 1 {
		t.Fatalf("expected scale 1, got %v", c.Scale())
	}

	c.Frame(clock.Now()) // starts the smooth scroll
	c.Frame(clock.Advance(150 * time.Millisecond))
	mid := c.Scroll()
	if mid == (geom.Point{}) {
		t.Fatalf("expected scroll still in flight halfway through")
	}
	c.Frame(clock.Advance(200 * time.Millisecond))
	if c.Scroll() != (geom.Point{}) {
		t.Fatalf("expected scroll at origin, got %+v", c.Scroll())
	}
	if c.State().Animating {
		t.Fatalf("expected animation finished")
	}
}

func TestDrag_PansAgainstPointer(t *testing.T) {
	c := newTestController(nil)

	if c.StartDrag(TargetControl, geom.Pt(10, 10)) {
		t.Fatalf("expected drag from a control to be ignored")
	}
	if c.DragTo(geom.Pt(100, 100)) {
		t.Fatalf("expected move without drag to be ignored")
	}

	if !c.StartDrag(TargetDiagram, geom.Pt(500, 400)) {
		t.Fatalf("expected drag from diagram to engage")
	}
	c.DragTo(geom.Pt(450, 380))
	if got := c.Scroll(); got != geom.Pt(350, 220) {
		t.Fatalf("expected scroll (350,220), got %+v", got)
	}
	c.DragTo(geom.Pt(520, 430))
	if got := c.Scroll(); got != geom.Pt(280, 170) {
		t.Fatalf("expected scroll (280,170), got %+v", got)
	}

	if !c.EndDrag() {
		t.Fatalf("expected end drag to report an active drag")
	}
	if c.EndDrag() {
		t.Fatalf("expected second end drag to be a no-op")
	}
	c.DragTo(geom.Pt(0, 0))
	if got := c.Scroll(); got != geom.Pt(280, 170) {
		t.Fatalf("expected scroll frozen after drag end, got %+v", got)
	}
}

func TestScroll_ClampedToContent(t *testing.T) {
	c := newTestController(nil)
	c.SetScroll(geom.Pt(-50, 99999))
	if got := c.Scroll(); got != geom.Pt(0, 900) {
		t.Fatalf("expected clamped scroll (0,900), got %+v", got)
	}
}

func TestListeners(t *testing.T) {
	c := newTestController(nil)
	scrolls, resizes := 0, 0
	c.OnScroll(func(geom.Point) { scrolls++ })
	c.OnResize(func(geom.Size) { resizes++ })

	c.SetScroll(geom.Pt(10, 10))
	c.SetScroll(geom.Pt(10, 10))
	c.SetContainer(geom.Size{W: 1024, H: 768})
	c.SetContainer(geom.Size{W: 1024, H: 768})

	if scrolls != 1 {
		t.Fatalf("expected 1 scroll notification, got %d", scrolls)
	}
	if resizes != 1 {
		t.Fatalf("expected 1 resize notification, got %d", resizes)
	}
}

func TestCenterOn(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := newTestController(clock)
	c.ZoomBy(1, geom.Pt(0, 0)) // scale 2

	if c.CenterOn(nil) {
		t.Fatalf("expected no-op for zero points")
	}

	ok := c.CenterOn([]geom.Point{{X: 400, Y: 300}, {X: 800, Y: 500}})
	if !ok {
		t.Fatalf("expected centering to start")
	}
	c.Frame(clock.Advance(time.Second))

	// bbox center (600,400) * 2 - (400,300)
	if got := c.Scroll(); !got.Near(geom.Pt(800, 500), eps) {
		t.Fatalf("expected scroll (800,500), got %+v", got)
	}
	if center := c.State().ContentAt(c.State().Container.Center()); !center.Near(geom.Pt(600, 400), eps) {
		t.Fatalf("expected container center on (600,400), got %+v", center)
	}
}

func TestParseTarget(t *testing.T) {
	if ParseTarget("svg") != TargetDiagram || ParseTarget("background") != TargetBackground || ParseTarget("button") != TargetControl {
		t.Fatalf("unexpected target parsing")
	}
}
