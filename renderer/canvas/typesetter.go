package canvasrenderer

import (
	"math"

	"github.com/ByLCY/quire/layout"
)

// Options configures the canvas font stack.
type Options struct {
	BaseDir string
	// FontFamily is used when a style names no font: serif, sans, mono, go, a
	// built-in name, or a path relative to BaseDir.
	FontFamily string
	// FontSize is the default size in points.
	FontSize   float64
	LineHeight layout.LineHeightSpec
	Fonts      map[string]Resource // built-in fonts accessible via built-in:<name>
}

func (o Options) normalized() Options {
	if o.FontFamily == "" {
		o.FontFamily = "serif"
	}
	if o.FontSize <= 0 {
		o.FontSize = 11
	}
	if o.LineHeight == (layout.LineHeightSpec{}) {
		o.LineHeight = layout.DefaultLineHeight
	}
	return o
}

// Typesetter measures text with real font metrics from tdewolff/canvas.
// All values crossing the layout boundary are points; canvas itself works in millimetres.
type Typesetter struct {
	layout.Typesetter
	fonts      *fontSet
	lineHeight layout.LineHeightSpec
}

var (
	_ layout.Typesetter = (*Typesetter)(nil)
	_ layout.Metrics    = (*fontMetrics)(nil)
)

// NewTypesetter loads the fallback font and returns a ready typesetter.
func NewTypesetter(opts Options) (*Typesetter, error) {
	opts = opts.normalized()
	fs, err := newFontSet(opts)
	if err != nil {
		return nil, err
	}
	t := &Typesetter{fonts: fs, lineHeight: opts.LineHeight}
	t.Typesetter = layout.NewTypesetter(&fontMetrics{t: t})
	return t, nil
}

// Metrics exposes the per-rune metrics the typesetter wraps with.
func (t *Typesetter) Metrics() layout.Metrics { return &fontMetrics{t: t} }

type fontMetrics struct{ t *Typesetter }

func (m *fontMetrics) Advance(r rune, st layout.Style) float64 {
	if r == '\n' || r == '\r' {
		return 0
	}
	return m.t.fonts.advance(r, st)
}

func (m *fontMetrics) LineHeight(st layout.Style) float64 {
	return m.t.lineHeight.Resolve(m.t.fonts.sizeOf(st))
}

// Ascent places the baseline so that extra leading is split evenly above and below the glyphs.
func (m *fontMetrics) Ascent(st layout.Style) float64 {
	fm := m.t.fonts.face(st).Metrics()
	textHeight := toPt(fm.LineHeight)
	leading := math.Max(m.LineHeight(st)-textHeight, 0)
	return toPt(fm.Ascent) + leading/2
}
