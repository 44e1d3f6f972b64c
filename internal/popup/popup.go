// Package popup positions the transient "use as start / use as end" popup
// that appears when a station is picked on the diagram.
package popup

import "metroview/internal/geom"

// Margin separates the popup from the pointer on both axes.
const Margin = 15.0

type DismissReason string

const (
	DismissCancel  DismissReason = "cancel"
	DismissScroll  DismissReason = "scroll"
	DismissResize  DismissReason = "resize"
	DismissConfirm DismissReason = "confirm"
	DismissOutside DismissReason = "outside"
)

// State is the popup as the viewer shell should draw it. Position is in the
// container's scrolled frame so the popup stays pinned to the diagram.
type State struct {
	Open       bool       `json:"open"`
	Pending    string     `json:"pending,omitempty"`
	Anchor     geom.Point `json:"anchor"`
	Position   geom.Point `json:"position"`
	Size       geom.Size  `json:"size"`
	FlipX      bool       `json:"flip_x"`
	FlipY      bool       `json:"flip_y"`
	Generation uint64     `json:"generation"`
	// Dismissed is why the last popup closed; empty while one is open.
	Dismissed DismissReason `json:"dismissed,omitempty"`
}

type Positioner struct {
	state State
	gen   uint64
}

func (p *Positioner) State() State { return p.state }

// Pending is the picked station, or "" when no popup is open.
func (p *Positioner) Pending() string {
	if !p.state.Open {
		return ""
	}
	return p.state.Pending
}

// Open starts a fresh popup for name at a container-relative pointer.
func (p *Positioner) Open(name string, pointer, scroll geom.Point) State {
	p.gen++
	anchor := pointer.Add(scroll)
	p.state = State{
		Open:       true,
		Pending:    name,
		Anchor:     anchor,
		Position:   anchor.Add(geom.Point{X: Margin, Y: Margin}),
		Generation: p.gen,
	}
	return p.state
}

// Layout applies the measured popup size. An edge that would leave the
// visible viewport flips the popup to the other side of the pointer.
func (p *Positioner) Layout(size geom.Size, scroll geom.Point, viewport geom.Size) State {
	if !p.state.Open {
		return p.state
	}
	st := &p.state
	st.Size = size
	st.Position = st.Anchor.Add(geom.Point{X: Margin, Y: Margin})
	st.FlipX, st.FlipY = false, false

	screen := st.Position.Sub(scroll)
	if screen.X+size.W > viewport.W {
		st.Position.X = st.Anchor.X - size.W - Margin
		st.FlipX = true
	}
	if screen.Y+size.H > viewport.H {
		st.Position.Y = st.Anchor.Y - size.H - Margin
		st.FlipY = true
	}
	return *st
}

// ScreenRect is the popup's box relative to the visible viewport.
func (p *Positioner) ScreenRect(scroll geom.Point) geom.Rect {
	min := p.state.Position.Sub(scroll)
	return geom.Rect{Min: min, Max: min.Add(geom.Point{X: p.state.Size.W, Y: p.state.Size.H})}
}

// Dismiss closes the open popup and returns its pending station. It reports
// false when nothing was open, so each popup is dismissed exactly once.
func (p *Positioner) Dismiss(reason DismissReason) (string, bool) {
	if !p.state.Open {
		return "", false
	}
	name := p.state.Pending
	p.state = State{Generation: p.state.Generation, Dismissed: reason}
	return name, true
}

// Confirm consumes the pending station for a start/end choice.
func (p *Positioner) Confirm() (string, bool) {
	return p.Dismiss(DismissConfirm)
}
