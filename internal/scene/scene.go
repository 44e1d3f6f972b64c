// Package scene adapts a rendered transit diagram to the operations the
// viewer needs: resolving a station name to a content-space point and
// attaching or removing the single route overlay.
package scene

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"metroview/internal/geom"
)

// Scene is the representation-agnostic view of a diagram. Resolve never
// fails loudly: a missing station reports ok=false and callers skip it.
type Scene interface {
	Resolve(name string) (geom.Point, bool)
	ClearOverlay()
	DrawOverlay(o Overlay)
}

// Highlighter is implemented by scenes that can badge the selected start and
// end stations independently of the route overlay.
type Highlighter interface {
	ClearHighlights()
	DrawHighlight(h Highlight)
}

type Role string

const (
	RoleStart Role = "start"
	RoleEnd   Role = "end"
	RoleVia   Role = "via"
)

const (
	OpMove = 'M'
	OpLine = 'L'
)

type PathCommand struct {
	Op    byte       `json:"op"`
	Point geom.Point `json:"point"`
}

type Path struct {
	Class    string        `json:"class"`
	Width    float64       `json:"width"`
	Stroke   string        `json:"stroke"`
	Commands []PathCommand `json:"commands"`
}

// D renders the commands as SVG path data.
func (p Path) D() string {
	var sb strings.Builder
	for i, c := range p.Commands {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(c.Op)
		sb.WriteByte(' ')
		sb.WriteString(FormatNumber(c.Point.X))
		sb.WriteByte(' ')
		sb.WriteString(FormatNumber(c.Point.Y))
	}
	return sb.String()
}

// Segments counts the drawn straight segments.
func (p Path) Segments() int {
	n := 0
	for _, c := range p.Commands {
		if c.Op == OpLine {
			n++
		}
	}
	return n
}

type Marker struct {
	Index   int        `json:"index"`
	Station string     `json:"station"`
	Point   geom.Point `json:"point"`
	Radius  float64    `json:"radius"`
	Role    Role       `json:"role"`
}

type Label struct {
	Index int        `json:"index"`
	Point geom.Point `json:"point"`
	Text  string     `json:"text"`
}

type TransferIndicator struct {
	Station string     `json:"station"`
	Point   geom.Point `json:"point"`
}

type GradientStop struct {
	Offset string `json:"offset"`
	Color  string `json:"color"`
}

type Gradient struct {
	ID    string         `json:"id"`
	Stops []GradientStop `json:"stops"`
}

// Overlay is the complete, derived geometry of one drawn route.
type Overlay struct {
	Points     []geom.StationPoint `json:"points"`
	Background Path                `json:"background"`
	Foreground Path                `json:"foreground"`
	Gradient   Gradient            `json:"gradient"`
	Markers    []Marker            `json:"markers"`
	Labels     []Label             `json:"labels"`
	Transfers  []TransferIndicator `json:"transfers"`
}

type Highlight struct {
	Role    Role       `json:"role"`
	Station string     `json:"station"`
	Point   geom.Point `json:"point"`
}

// FormatNumber prints coordinates without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Ready is resolved exactly once, when the diagram becomes available.
type Ready struct {
	once sync.Once
	done chan struct{}
	svg  *SVG
	err  error
}

func NewReady() *Ready {
	return &Ready{done: make(chan struct{})}
}

// Resolve publishes the loaded diagram (or the load error). Only the first
// call has an effect; it reports whether this call won.
func (r *Ready) Resolve(svg *SVG, err error) bool {
	won := false
	r.once.Do(func() {
		r.svg = svg
		r.err = err
		won = true
		close(r.done)
	})
	return won
}

func (r *Ready) Done() <-chan struct{} { return r.done }

// Wait blocks until the diagram is resolved or ctx ends.
func (r *Ready) Wait(ctx context.Context) (*SVG, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return r.svg, r.err
	}
}

// IsReady reports whether a diagram was resolved successfully.
func (r *Ready) IsReady() bool {
	select {
	case <-r.done:
		return r.err == nil && r.svg != nil
	default:
		return false
	}
}
