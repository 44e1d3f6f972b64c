// Package viewport keeps zoom and pan of the diagram container consistent.
//
// The controller owns one State. Scale and scroll always change together so
// that the displayed size is natural size times scale, and a zoom keeps the
// content point under its anchor fixed on screen.
package viewport

import (
	"math"
	"strings"
	"time"

	"metroview/internal/geom"
)

const (
	MinScale   = 0.5
	MaxScale   = 3.0
	ButtonStep = 0.2
	WheelStep  = 0.15

	DefaultSmoothScroll = 300 * time.Millisecond

	// Smooth scrolls shorter than this jump instead of animating.
	subPixel = 0.5
)

// Target identifies what a pointer-down landed on.
type Target int

const (
	TargetBackground Target = iota
	TargetDiagram
	TargetControl
)

func ParseTarget(s string) Target {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "background", "container":
		return TargetBackground
	case "diagram", "svg":
		return TargetDiagram
	default:
		return TargetControl
	}
}

type State struct {
	Scale     float64    `json:"scale"`
	Natural   geom.Size  `json:"natural"`
	Container geom.Size  `json:"container"`
	Scroll    geom.Point `json:"scroll"`
	Dragging  bool       `json:"dragging"`
	Animating bool       `json:"animating"`
}

// Displayed is the on-screen size of the diagram.
func (s State) Displayed() geom.Size { return s.Natural.Mul(s.Scale) }

// ContentAt maps a container-relative screen point to content space.
func (s State) ContentAt(screen geom.Point) geom.Point {
	return s.Scroll.Add(screen).Div(s.Scale)
}

// MaxScroll is the largest scroll offset the container allows.
func (s State) MaxScroll() geom.Point {
	d := s.Displayed()
	return geom.Point{X: math.Max(0, d.W-s.Container.W), Y: math.Max(0, d.H-s.Container.H)}
}

type Options struct {
	SmoothScroll time.Duration
	Frames       *FrameQueue
	Now          func() time.Time
}

type dragState struct {
	active       bool
	startPointer geom.Point
	startScroll  geom.Point
}

type scrollAnimation struct {
	from  geom.Point
	to    geom.Point
	start time.Time
	dur   time.Duration
}

type Controller struct {
	state   State
	frames  *FrameQueue
	smooth  time.Duration
	now     func() time.Time
	drag    dragState
	anim    *scrollAnimation
	pending *geom.Point

	scrollListeners []func(geom.Point)
	resizeListeners []func(geom.Size)
}

// New builds a controller at scale 1 and scroll origin. A diagram with no
// measurable extent takes the container's size.
func New(natural, container geom.Size, opts Options) *Controller {
	if natural.Empty() {
		natural = container
	}
	smooth := opts.SmoothScroll
	if smooth < 0 {
		smooth = 0
	}
	frames := opts.Frames
	if frames == nil {
		frames = &FrameQueue{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		state:  State{Scale: 1, Natural: natural, Container: container},
		frames: frames,
		smooth: smooth,
		now:    now,
	}
}

func (c *Controller) State() State {
	s := c.state
	s.Dragging = c.drag.active
	s.Animating = c.anim != nil || c.pending != nil
	return s
}

func (c *Controller) Scale() float64      { return c.state.Scale }
func (c *Controller) Scroll() geom.Point  { return c.state.Scroll }
func (c *Controller) Frames() *FrameQueue { return c.frames }

// OnScroll registers fn to run after every effective scroll change.
func (c *Controller) OnScroll(fn func(geom.Point)) {
	c.scrollListeners = append(c.scrollListeners, fn)
}

// OnResize registers fn to run after the container is resized.
func (c *Controller) OnResize(fn func(geom.Size)) {
	c.resizeListeners = append(c.resizeListeners, fn)
}

func (c *Controller) SetContainer(size geom.Size) {
	if size == c.state.Container {
		return
	}
	c.state.Container = size
	for _, fn := range c.resizeListeners {
		fn(size)
	}
	c.setScroll(c.state.Scroll)
}

// ZoomBy rescales by delta and keeps the content under anchor in place. It
// reports false when the scale is already at the bound.
func (c *Controller) ZoomBy(delta float64, anchor geom.Point) bool {
	base := c.baseScroll()
	ratio, ok := c.rescale(delta)
	if !ok {
		return false
	}
	c.pending = nil
	c.setScroll(base.Add(anchor).Mul(ratio).Sub(anchor))
	return true
}

func (c *Controller) ZoomIn() bool {
	return c.ZoomBy(ButtonStep, c.state.Container.Center())
}

func (c *Controller) ZoomOut() bool {
	return c.ZoomBy(-ButtonStep, c.state.Container.Center())
}

// Wheel zooms around the cursor. The scale applies now; the scroll
// correction lands on the next frame, once the new size has taken effect.
func (c *Controller) Wheel(deltaY float64, cursor geom.Point) bool {
	delta := WheelStep
	if deltaY > 0 {
		delta = -WheelStep
	}

	base := c.baseScroll()
	ratio, ok := c.rescale(delta)
	if !ok {
		return false
	}

	target := base.Add(cursor).Mul(ratio).Sub(cursor)
	first := c.pending == nil
	c.pending = &target
	if first {
		c.frames.Request(func(time.Time) {
			if c.pending == nil {
				return
			}
			p := *c.pending
			c.pending = nil
			c.setScroll(p)
		})
	}
	return true
}

// Reset returns to scale 1 and smoothly scrolls back to the origin.
func (c *Controller) Reset() {
	c.pending = nil
	c.state.Scale = 1
	c.setScrollKeepAnimation(c.state.Scroll)
	c.frames.Request(func(time.Time) {
		c.ScrollTo(geom.Point{}, true)
	})
}

// ScrollTo moves to p, eased over the smooth-scroll duration when smooth is
// set. A later scroll supersedes an in-flight one.
func (c *Controller) ScrollTo(p geom.Point, smooth bool) {
	target := c.clamp(p)
	if !smooth || c.smooth == 0 || target.Near(c.state.Scroll, subPixel) {
		c.setScroll(target)
		return
	}
	c.anim = &scrollAnimation{from: c.state.Scroll, to: target, start: c.now(), dur: c.smooth}
}

// SetScroll applies a scroll the user made directly (scrollbar, keys).
func (c *Controller) SetScroll(p geom.Point) {
	c.setScroll(p)
}

// StartDrag engages a pan when the pointer went down on the background or
// the diagram itself.
func (c *Controller) StartDrag(target Target, pointer geom.Point) bool {
	if target != TargetBackground && target != TargetDiagram {
		return false
	}
	c.drag = dragState{active: true, startPointer: pointer, startScroll: c.state.Scroll}
	return true
}

func (c *Controller) DragTo(pointer geom.Point) bool {
	if !c.drag.active {
		return false
	}
	c.setScroll(c.drag.startScroll.Sub(pointer.Sub(c.drag.startPointer)))
	return true
}

// EndDrag ends a pan. It is wired to pointer-up anywhere, so it must be
// harmless when no drag is active.
func (c *Controller) EndDrag() bool {
	if !c.drag.active {
		return false
	}
	c.drag = dragState{}
	return true
}

// Frame runs deferred corrections and advances smooth scrolling.
func (c *Controller) Frame(now time.Time) {
	c.frames.Flush(now)

	a := c.anim
	if a == nil {
		return
	}
	t := 1.0
	if a.dur > 0 {
		t = geom.Clamp(float64(now.Sub(a.start))/float64(a.dur), 0, 1)
	}
	e := easeInOut(t)
	c.setScrollKeepAnimation(a.from.Add(a.to.Sub(a.from).Mul(e)))
	if t >= 1 && c.anim == a {
		c.anim = nil
	}
}

func (c *Controller) rescale(delta float64) (float64, bool) {
	old := c.state.Scale
	next := geom.Clamp(old+delta, MinScale, MaxScale)
	if next == old {
		return 1, false
	}
	c.state.Scale = next
	return next / old, true
}

// baseScroll is the scroll a new zoom should start from: a correction still
// waiting for its frame counts as already applied.
func (c *Controller) baseScroll() geom.Point {
	if c.pending != nil {
		return *c.pending
	}
	return c.state.Scroll
}

func (c *Controller) clamp(p geom.Point) geom.Point {
	m := c.state.MaxScroll()
	return geom.Point{X: geom.Clamp(p.X, 0, m.X), Y: geom.Clamp(p.Y, 0, m.Y)}
}

func (c *Controller) setScroll(p geom.Point) {
	c.anim = nil
	c.setScrollKeepAnimation(p)
}

func (c *Controller) setScrollKeepAnimation(p geom.Point) {
	p = c.clamp(p)
	if p == c.state.Scroll {
		return
	}
	c.state.Scroll = p
	for _, fn := range c.scrollListeners {
		fn(p)
	}
}

func easeInOut(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - f*f*f/2
}
