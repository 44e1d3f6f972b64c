package scene

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"metroview/internal/geom"
)

const (
	OverlayClass   = "route-overlay"
	HighlightClass = "highlight-label"

	defaultFontSize = 16
)

var ErrNotSVG = errors.New("document root is not <svg>")

// SVG is a Scene backed by an in-memory SVG document. It is not safe for
// concurrent use; the viewer session owns it on its event loop.
type SVG struct {
	doc     *etree.Document
	root    *etree.Element
	metrics *TextMetrics
	natural geom.Size
}

// LoadSVG reads and parses an SVG diagram from disk.
func LoadSVG(path string) (*SVG, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open diagram %s: %w", path, err)
	}
	defer f.Close()

	s, err := ParseSVG(f)
	if err != nil {
		return nil, fmt.Errorf("parse diagram %s: %w", path, err)
	}
	return s, nil
}

func ParseSVG(r io.Reader) (*SVG, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, ErrNotSVG
	}
	metrics, err := NewTextMetrics()
	if err != nil {
		return nil, err
	}

	s := &SVG{doc: doc, root: root, metrics: metrics}
	s.natural = s.computeNaturalSize()
	return s, nil
}

// NaturalSize is the diagram's intrinsic size, computed once at load.
func (s *SVG) NaturalSize() geom.Size { return s.natural }

// WriteTo serializes the current document, overlay included.
func (s *SVG) WriteTo(w io.Writer) (int64, error) {
	return s.doc.WriteTo(w)
}

func (s *SVG) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Resolve looks up a station: first an element with a matching id carrying
// cx/cy, then a <text> whose trimmed content equals the name.
func (s *SVG) Resolve(name string) (geom.Point, bool) {
	if name == "" {
		return geom.Point{}, false
	}

	if el := s.findByID(name); el != nil {
		cx, okX := parseLength(el.SelectAttrValue("cx", ""))
		cy, okY := parseLength(el.SelectAttrValue("cy", ""))
		if okX && okY {
			return geom.Point{X: cx, Y: cy}, true
		}
	}

	var found *etree.Element
	s.walk(func(el *etree.Element) bool {
		if el.Tag == "text" && strings.TrimSpace(textContent(el)) == name {
			found = el
			return false
		}
		return true
	})
	if found == nil {
		return geom.Point{}, false
	}
	box := s.textBounds(found)
	return geom.Point{X: box.Center().X, Y: box.Min.Y}, true
}

// ClearOverlay removes every attached overlay group. Safe with none present.
func (s *SVG) ClearOverlay() {
	s.removeByClass(OverlayClass)
}

// DrawOverlay replaces the attached overlay with o.
func (s *SVG) DrawOverlay(o Overlay) {
	s.ClearOverlay()
	s.putGradient(o.Gradient)

	g := s.root.CreateElement("g")
	g.CreateAttr("class", OverlayClass)

	addPath(g, o.Background)
	addPath(g, o.Foreground)

	labels := make(map[int]Label, len(o.Labels))
	for _, l := range o.Labels {
		labels[l.Index] = l
	}
	for _, m := range o.Markers {
		dot := g.CreateElement("circle")
		dot.CreateAttr("cx", FormatNumber(m.Point.X))
		dot.CreateAttr("cy", FormatNumber(m.Point.Y))
		dot.CreateAttr("r", FormatNumber(m.Radius))
		dot.CreateAttr("class", markerClass(m.Role))
		dot.CreateAttr("data-station", m.Station)

		if l, ok := labels[m.Index]; ok {
			addSeqLabel(g, l.Point, l.Text)
			delete(labels, m.Index)
		}
	}
	for _, l := range o.Labels {
		if _, ok := labels[l.Index]; ok {
			addSeqLabel(g, l.Point, l.Text)
		}
	}

	for _, tr := range o.Transfers {
		ring := g.CreateElement("circle")
		ring.CreateAttr("cx", FormatNumber(tr.Point.X))
		ring.CreateAttr("cy", FormatNumber(tr.Point.Y))
		ring.CreateAttr("r", "13")
		ring.CreateAttr("class", "route-transfer")
		ring.CreateAttr("data-station", tr.Station)
		ring.CreateAttr("fill", "none")
		ring.CreateAttr("stroke", "#e67e22")
		ring.CreateAttr("stroke-width", "3")
	}
}

func (s *SVG) ClearHighlights() {
	s.removeByClass(HighlightClass)
}

func (s *SVG) DrawHighlight(h Highlight) {
	const (
		padding     = 6.0
		labelWidth  = 40.0
		labelHeight = 18.0
	)
	x := h.Point.X - labelWidth/2
	y := h.Point.Y - labelHeight - padding

	g := s.root.CreateElement("g")
	g.CreateAttr("class", HighlightClass+" "+string(h.Role))

	rect := g.CreateElement("rect")
	rect.CreateAttr("x", FormatNumber(x))
	rect.CreateAttr("y", FormatNumber(y))
	rect.CreateAttr("width", FormatNumber(labelWidth))
	rect.CreateAttr("height", FormatNumber(labelHeight))

	text := g.CreateElement("text")
	text.CreateAttr("x", FormatNumber(h.Point.X))
	text.CreateAttr("y", FormatNumber(y+labelHeight/2))
	text.CreateAttr("text-anchor", "middle")
	text.CreateAttr("dominant-baseline", "middle")
	if h.Role == RoleStart {
		text.SetText("起点")
	} else {
		text.SetText("终点")
	}
}

func addPath(g *etree.Element, p Path) {
	if len(p.Commands) == 0 {
		return
	}
	el := g.CreateElement("path")
	el.CreateAttr("d", p.D())
	el.CreateAttr("class", p.Class)
	el.CreateAttr("fill", "none")
	if p.Stroke != "" {
		el.CreateAttr("stroke", p.Stroke)
	}
	if p.Width > 0 {
		el.CreateAttr("stroke-width", FormatNumber(p.Width))
	}
	el.CreateAttr("stroke-linecap", "round")
	el.CreateAttr("stroke-linejoin", "round")
}

func addSeqLabel(g *etree.Element, p geom.Point, text string) {
	t := g.CreateElement("text")
	t.CreateAttr("x", FormatNumber(p.X))
	t.CreateAttr("y", FormatNumber(p.Y))
	t.CreateAttr("text-anchor", "middle")
	t.CreateAttr("dominant-baseline", "middle")
	t.CreateAttr("class", "route-seq")
	t.CreateAttr("style", "font-size: 9px; font-weight: bold; fill: #fff; pointer-events: none; opacity: 0.8;")
	t.SetText(text)
}

func markerClass(r Role) string {
	switch r {
	case RoleStart:
		return "route-dot start"
	case RoleEnd:
		return "route-dot end"
	default:
		return "route-dot"
	}
}

// putGradient keeps a single definition per gradient id under <defs>.
func (s *SVG) putGradient(gr Gradient) {
	if gr.ID == "" {
		return
	}
	defs := s.defs()
	for _, old := range defs.ChildElements() {
		if old.SelectAttrValue("id", "") == gr.ID {
			defs.RemoveChild(old)
		}
	}

	lg := defs.CreateElement("linearGradient")
	lg.CreateAttr("id", gr.ID)
	lg.CreateAttr("x1", "0%")
	lg.CreateAttr("y1", "0%")
	lg.CreateAttr("x2", "100%")
	lg.CreateAttr("y2", "0%")
	for _, st := range gr.Stops {
		stop := lg.CreateElement("stop")
		stop.CreateAttr("offset", st.Offset)
		stop.CreateAttr("style", "stop-color:"+st.Color+";stop-opacity:1")
	}
}

func (s *SVG) defs() *etree.Element {
	var defs *etree.Element
	s.walk(func(el *etree.Element) bool {
		if el.Tag == "defs" {
			defs = el
			return false
		}
		return true
	})
	if defs != nil {
		return defs
	}
	defs = etree.NewElement("defs")
	s.root.InsertChildAt(0, defs)
	return defs
}

func (s *SVG) findByID(id string) *etree.Element {
	var found *etree.Element
	s.walk(func(el *etree.Element) bool {
		if el.SelectAttrValue("id", "") == id {
			found = el
			return false
		}
		return true
	})
	return found
}

func (s *SVG) removeByClass(class string) {
	var doomed []*etree.Element
	var visit func(el *etree.Element)
	visit = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			if hasClass(c, class) {
				doomed = append(doomed, c)
				continue
			}
			visit(c)
		}
	}
	visit(s.root)
	for _, el := range doomed {
		if p := el.Parent(); p != nil {
			p.RemoveChild(el)
		}
	}
}

// walk visits diagram elements in document order, skipping anything the
// viewer itself attached. fn returns false to stop.
func (s *SVG) walk(fn func(el *etree.Element) bool) {
	var visit func(el *etree.Element) bool
	visit = func(el *etree.Element) bool {
		for _, c := range el.ChildElements() {
			if hasClass(c, OverlayClass) || hasClass(c, HighlightClass) {
				continue
			}
			if !fn(c) {
				return false
			}
			if !visit(c) {
				return false
			}
		}
		return true
	}
	visit(s.root)
}

func hasClass(el *etree.Element, class string) bool {
	for _, c := range strings.Fields(el.SelectAttrValue("class", "")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(el *etree.Element) string {
	var sb strings.Builder
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			sb.WriteString(textContent(t))
		}
	}
	return sb.String()
}

// textBounds estimates the rendered box of a <text> element in its own
// user space. Each absolutely positioned <tspan> starts a new run; the box is
// the union of the runs that carry text.
func (s *SVG) textBounds(el *etree.Element) geom.Rect {
	x, _ := parseLength(firstListValue(el.SelectAttrValue("x", "0")))
	y, _ := parseLength(firstListValue(el.SelectAttrValue("y", "0")))

	first := &textRun{el: el, x: x, y: y}
	runs := s.collectRuns(el, []*textRun{first})

	var box geom.Rect
	have := false
	for _, r := range runs {
		if strings.TrimSpace(r.text.String()) == "" {
			continue
		}
		rb := s.runBounds(r)
		if !have {
			box, have = rb, true
			continue
		}
		box = box.Union(rb)
	}
	if !have {
		return s.runBounds(first)
	}
	return box
}

type textRun struct {
	el   *etree.Element
	x, y float64
	text strings.Builder
}

// collectRuns appends el's character data to the last run, opening a new run
// for every descendant <tspan> that sets x or y.
func (s *SVG) collectRuns(el *etree.Element, runs []*textRun) []*textRun {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			runs[len(runs)-1].text.WriteString(t.Data)
		case *etree.Element:
			if t.Tag == "tspan" && (t.SelectAttr("x") != nil || t.SelectAttr("y") != nil) {
				cur := runs[len(runs)-1]
				penX, _ := s.metrics.Measure(strings.TrimSpace(cur.text.String()), fontSize(cur.el))
				next := &textRun{el: t, x: cur.x + penX, y: cur.y}
				if v, ok := parseLength(firstListValue(t.SelectAttrValue("x", ""))); ok {
					next.x = v
				}
				if v, ok := parseLength(firstListValue(t.SelectAttrValue("y", ""))); ok {
					next.y = v
				}
				runs = append(runs, next)
			}
			runs = s.collectRuns(t, runs)
		}
	}
	return runs
}

func fontSize(el *etree.Element) float64 {
	if v, ok := inherited(el, "font-size"); ok {
		if fs, ok := parseLength(v); ok && fs > 0 {
			return fs
		}
	}
	return defaultFontSize
}

func (s *SVG) runBounds(r *textRun) geom.Rect {
	size := fontSize(r.el)
	anchor, _ := inherited(r.el, "text-anchor")

	w, ascent := s.metrics.Measure(strings.TrimSpace(r.text.String()), size)
	left := r.x
	switch strings.TrimSpace(anchor) {
	case "middle":
		left = r.x - w/2
	case "end":
		left = r.x - w
	}
	return geom.Rect{
		Min: geom.Point{X: left, Y: r.y - ascent},
		Max: geom.Point{X: left + w, Y: r.y + (size - ascent)},
	}
}

// inherited reads a presentation property from el or its ancestors, checking
// inline style before the attribute.
func inherited(el *etree.Element, prop string) (string, bool) {
	for cur := el; cur != nil; cur = cur.Parent() {
		if v, ok := styleProperty(cur.SelectAttrValue("style", ""), prop); ok {
			return v, true
		}
		if a := cur.SelectAttr(prop); a != nil {
			return a.Value, true
		}
	}
	return "", false
}

func styleProperty(style, prop string) (string, bool) {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == prop {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (s *SVG) computeNaturalSize() geom.Size {
	if vb := s.root.SelectAttrValue("viewBox", ""); vb != "" {
		parts := splitList(vb)
		if len(parts) == 4 {
			w, okW := parseLength(parts[2])
			h, okH := parseLength(parts[3])
			if okW && okH && w > 0 && h > 0 {
				return geom.Size{W: w, H: h}
			}
		}
	}

	wAttr := s.root.SelectAttrValue("width", "")
	hAttr := s.root.SelectAttrValue("height", "")
	if wAttr != "" && hAttr != "" && !strings.HasSuffix(wAttr, "%") && !strings.HasSuffix(hAttr, "%") {
		w, okW := parseLength(wAttr)
		h, okH := parseLength(hAttr)
		if okW && okH && w > 0 && h > 0 {
			return geom.Size{W: w, H: h}
		}
	}

	box, ok := s.contentBounds()
	if !ok {
		return geom.Size{}
	}
	s.root.CreateAttr("viewBox", strings.Join([]string{
		FormatNumber(box.Min.X), FormatNumber(box.Min.Y),
		FormatNumber(box.Width()), FormatNumber(box.Height()),
	}, " "))
	return box.Size()
}

func (s *SVG) contentBounds() (geom.Rect, bool) {
	var box geom.Rect
	have := false
	add := func(r geom.Rect) {
		if !have {
			box, have = r, true
			return
		}
		box = box.Union(r)
	}

	s.walk(func(el *etree.Element) bool {
		num := func(key string) float64 {
			v, _ := parseLength(el.SelectAttrValue(key, "0"))
			return v
		}
		switch el.Tag {
		case "circle":
			cx, cy, r := num("cx"), num("cy"), num("r")
			add(geom.Rect{Min: geom.Pt(cx-r, cy-r), Max: geom.Pt(cx+r, cy+r)})
		case "rect":
			x, y := num("x"), num("y")
			add(geom.Rect{Min: geom.Pt(x, y), Max: geom.Pt(x+num("width"), y+num("height"))})
		case "line":
			if b, ok := geom.Bounds([]geom.Point{geom.Pt(num("x1"), num("y1")), geom.Pt(num("x2"), num("y2"))}); ok {
				add(b)
			}
		case "text":
			add(s.textBounds(el))
		}
		return true
	})
	return box, have
}

func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

func firstListValue(v string) string {
	parts := splitList(v)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// parseLength reads the leading number of an SVG length ("12", "12.5px").
func parseLength(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	end := 0
	for end < len(v) {
		c := v[end]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			end++
			continue
		}
		break
	}
	for end > 0 {
		f, err := strconv.ParseFloat(v[:end], 64)
		if err == nil {
			return f, true
		}
		end--
	}
	return 0, false
}
