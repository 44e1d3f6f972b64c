// Package geom holds the small value types shared by the viewport, scene and
// overlay packages. Content-space and container-space values use the same
// types; the surrounding API says which space a value lives in.
package geom

import "math"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Pt(x, y float64) Point { return Point{X: x, Y: y} }

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

func (p Point) Mul(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Div divides both coordinates by k. A zero k returns p unchanged.
func (p Point) Div(k float64) Point {
	if k == 0 {
		return p
	}
	return Point{X: p.X / k, Y: p.Y / k}
}

// Near reports whether p and q are within eps on both axes.
func (p Point) Near(q Point, eps float64) bool {
	return math.Abs(p.X-q.X) <= eps && math.Abs(p.Y-q.Y) <= eps
}

type Size struct {
	W float64 `json:"width"`
	H float64 `json:"height"`
}

func (s Size) Empty() bool { return s.W <= 0 || s.H <= 0 }

func (s Size) Mul(k float64) Size { return Size{W: s.W * k, H: s.H * k} }

// Center is the midpoint of a box of this size anchored at the origin.
func (s Size) Center() Point { return Point{X: s.W / 2, Y: s.H / 2} }

type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

func (r Rect) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

func (r Rect) Size() Size { return Size{W: r.Width(), H: r.Height()} }

// Contains reports whether q lies inside r (edges included).
func (r Rect) Contains(q Point) bool {
	return q.X >= r.Min.X && q.X <= r.Max.X && q.Y >= r.Min.Y && q.Y <= r.Max.Y
}

// ContainsRect reports whether o lies fully inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return r.Contains(o.Min) && r.Contains(o.Max)
}

// Union grows r to include o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		Min: Point{X: math.Min(r.Min.X, o.Min.X), Y: math.Min(r.Min.Y, o.Min.Y)},
		Max: Point{X: math.Max(r.Max.X, o.Max.X), Y: math.Max(r.Max.Y, o.Max.Y)},
	}
}

// Bounds returns the axis-aligned bounding box of pts. ok is false when pts
// is empty.
func Bounds(pts []Point) (r Rect, ok bool) {
	if len(pts) == 0 {
		return Rect{}, false
	}
	r = Rect{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r, true
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// StationPoint is a station name placed in content space.
type StationPoint struct {
	Name string `json:"name"`
	Point
}

// Points strips the names from sps, preserving order.
func Points(sps []StationPoint) []Point {
	out := make([]Point, 0, len(sps))
	for _, sp := range sps {
		out = append(out, sp.Point)
	}
	return out
}
