package scene

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/width"
)

// TextMetrics estimates rendered label extents without a layout engine.
// Narrow runes use Go Regular advances; East Asian wide and fullwidth runes
// advance one em, which is how CJK station names render in practice.
type TextMetrics struct {
	mu    sync.Mutex
	font  *opentype.Font
	faces map[float64]font.Face
}

func NewTextMetrics() (*TextMetrics, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse go regular: %w", err)
	}
	return &TextMetrics{font: f, faces: make(map[float64]font.Face)}, nil
}

func (m *TextMetrics) face(size float64) (font.Face, error) {
	if face, ok := m.faces[size]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(m.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	m.faces[size] = face
	return face, nil
}

// Measure returns the advance width and ascent of s at the given font size
// in user units.
func (m *TextMetrics) Measure(s string, size float64) (w, ascent float64) {
	if size <= 0 {
		size = defaultFontSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	face, err := m.face(size)
	if err != nil {
		// Rough fallback keeps resolution working with an unusable face.
		for _, r := range s {
			w += fallbackAdvance(r, size)
		}
		return w, size * 0.8
	}

	for _, r := range s {
		if isWide(r) {
			w += size
			continue
		}
		adv, ok := face.GlyphAdvance(r)
		if !ok {
			w += fallbackAdvance(r, size)
			continue
		}
		w += fixedToFloat(adv)
	}
	return w, fixedToFloat(face.Metrics().Ascent)
}

func isWide(r rune) bool {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return false
}

func fallbackAdvance(r rune, size float64) float64 {
	if isWide(r) {
		return size
	}
	return size * 0.55
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
