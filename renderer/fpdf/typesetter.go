// Package fpdfrenderer prints layout results through codeberg.org/go-pdf/fpdf,
// either with the built-in TrueType fonts or with the PDF core fonts.
package fpdfrenderer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"codeberg.org/go-pdf/fpdf"

	"github.com/ByLCY/quire/fonts"
	"github.com/ByLCY/quire/layout"
)

// FaceSource selects where glyph widths and outlines come from.
type FaceSource int

const (
	// EmbeddedFaces embeds the built-in TrueType fonts (Latin Modern, Go),
	// resolved from font names exactly like the canvas backend resolves them.
	EmbeddedFaces FaceSource = iota
	// CoreFaces uses Times, Helvetica and Courier without embedding anything.
	// These faces have no raster counterpart, so they cannot be previewed.
	CoreFaces
)

func (f FaceSource) String() string {
	if f == CoreFaces {
		return "core"
	}
	return "embedded"
}

// Options configures the fpdf font stack.
type Options struct {
	Faces FaceSource
	// BaseDir resolves relative font paths for embedded faces.
	BaseDir string
	// FontFamily is used when a style names no font: serif, sans, mono, go,
	// an embed: name or a font file path (core faces map it to Times,
	// Helvetica or Courier).
	FontFamily string
	// FontSize is the default size in points.
	FontSize   float64
	LineHeight layout.LineHeightSpec
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

// Typesetter measures text with the same width tables PrintSink draws with,
// so the printed spool wraps exactly like the layout it was computed from.
type Typesetter struct {
	layout.Typesetter
	opts Options

	mu       sync.Mutex
	measure  *fpdf.Fpdf
	tr       func(string) string
	widths   map[advanceKey]float64
	embedded map[string]*embeddedFace
}

// face is a style resolved to fpdf terms. ttf is nil for core fonts.
type face struct {
	family string
	style  string
	size   float64
	ttf    []byte
}

type embeddedFace struct {
	family string
	ttf    []byte
	ascent float64 // em units
	height float64
}

type advanceKey struct {
	family string
	style  string
	size   float64
	r      rune
}

var _ layout.Metrics = (*pdfMetrics)(nil)

// NewTypesetter returns a typesetter backed by fpdf font metrics.
func NewTypesetter(opts Options) *Typesetter {
	t := &Typesetter{
		opts:     opts.normalized(),
		widths:   map[advanceKey]float64{},
		embedded: map[string]*embeddedFace{},
	}
	t.measure = fpdf.New("P", "pt", "Letter", "")
	t.tr = t.measure.UnicodeTranslatorFromDescriptor("")
	t.Typesetter = layout.NewTypesetter(&pdfMetrics{t: t})
	return t
}

// Metrics exposes the per-rune metrics the typesetter wraps with.
func (t *Typesetter) Metrics() layout.Metrics { return &pdfMetrics{t: t} }

// Faces reports which font source the typesetter measures with.
func (t *Typesetter) Faces() FaceSource { return t.opts.Faces }

// font maps a style to the fpdf family, style string and size it is set in.
func (t *Typesetter) font(st layout.Style) face {
	size := st.Size
	if size <= 0 {
		size = t.opts.FontSize
	}
	if t.opts.Faces == CoreFaces {
		family, style := coreFont(t.fontName(st), st)
		return face{family: family, style: style, size: size}
	}
	ef := t.embeddedFace(st)
	return face{family: ef.family, size: size, ttf: ef.ttf}
}

func (t *Typesetter) fontName(st layout.Style) string {
	if st.Font != "" {
		return st.Font
	}
	return t.opts.FontFamily
}

func coreFont(name string, st layout.Style) (family, style string) {
	switch strings.ToLower(strings.TrimPrefix(name, "embed:")) {
	case "sans", "sans-serif", "helvetica", "arial", "go":
		family = "Helvetica"
	case "mono", "monospace", "courier":
		family = "Courier"
	default:
		family = "Times"
	}
	if st.Bold {
		style += "B"
	}
	if st.Italic {
		style += "I"
	}
	return family, style
}

// source names the font file a style is drawn with: an embed: name, a file
// path, or a family alias resolved to an embedded font.
func (t *Typesetter) source(st layout.Style) string {
	name := t.fontName(st)
	switch {
	case strings.HasPrefix(name, "built-in:"), strings.HasPrefix(name, "builtin:"),
		strings.HasPrefix(name, "embed:"), strings.ContainsAny(name, `/\`), filepath.Ext(name) != "":
		return name
	}
	return "embed:" + fonts.Resolve(name, st.Bold, st.Italic)
}

// embeddedFace registers the font for st with the measuring document on
// first use. Fonts that cannot be read or parsed fall back to Go Regular.
func (t *Typesetter) embeddedFace(st layout.Style) *embeddedFace {
	src := t.source(st)
	t.mu.Lock()
	defer t.mu.Unlock()
	if ef, ok := t.embedded[src]; ok {
		return ef
	}
	ef := &embeddedFace{family: fmt.Sprintf("quire%d", len(t.embedded))}
	data, err := t.loadFontBytes(src)
	if err == nil {
		err = t.registerLocked(ef, data)
	}
	if err != nil {
		fallback, _ := fonts.Load(fonts.Fallback)
		if t.registerLocked(ef, fallback) != nil {
			ef.family = "Times"
		}
	}
	t.embedded[src] = ef
	return ef
}

func (t *Typesetter) registerLocked(ef *embeddedFace, data []byte) error {
	t.measure.AddUTF8FontFromBytes(ef.family, "", data)
	if err := t.measure.Error(); err != nil {
		t.measure.ClearError()
		return err
	}
	ef.ttf = data
	desc := t.measure.GetFontDesc(ef.family, "")
	ef.ascent, ef.height = 0.8, 1.0
	if desc.Ascent > 0 {
		ef.ascent = float64(desc.Ascent) / 1000
		ef.height = float64(desc.Ascent-desc.Descent) / 1000
	}
	return nil
}

func (t *Typesetter) loadFontBytes(src string) ([]byte, error) {
	if strings.HasPrefix(src, "embed:") {
		return fonts.Load(src)
	}
	if strings.HasPrefix(src, "built-in:") || strings.HasPrefix(src, "builtin:") {
		return nil, fmt.Errorf("fpdf 后端不支持注入字体 %s", src)
	}
	path := src
	if !filepath.IsAbs(path) {
		if t.opts.BaseDir == "" {
			return nil, fmt.Errorf("未指定资源目录时不允许直接使用字体路径：%s", src)
		}
		path = filepath.Join(t.opts.BaseDir, path)
	}
	return os.ReadFile(path)
}

// textWidth measures text in points exactly as PrintSink sets it.
func (t *Typesetter) textWidth(text string, st layout.Style) float64 {
	f := t.font(st)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.measure.SetFont(f.family, f.style, f.size)
	if f.ttf == nil {
		text = t.tr(text)
	}
	return t.measure.GetStringWidth(text)
}

func (t *Typesetter) advance(r rune, st layout.Style) float64 {
	f := t.font(st)
	key := advanceKey{family: f.family, style: f.style, size: f.size, r: r}
	t.mu.Lock()
	w, ok := t.widths[key]
	t.mu.Unlock()
	if ok {
		return w
	}
	w = t.textWidth(string(r), st)
	t.mu.Lock()
	t.widths[key] = w
	t.mu.Unlock()
	return w
}

// ascent returns the ascent and the glyph box height in points.
func (t *Typesetter) ascent(st layout.Style) (float64, float64) {
	f := t.font(st)
	if f.ttf == nil {
		// core fonts: 0.8em ascent, 0.2em descent
		return 0.8 * f.size, f.size
	}
	ef := t.embeddedFace(st)
	return ef.ascent * f.size, ef.height * f.size
}

type pdfMetrics struct{ t *Typesetter }

func (m *pdfMetrics) Advance(r rune, st layout.Style) float64 {
	if r == '\n' || r == '\r' {
		return 0
	}
	return m.t.advance(r, st)
}

func (m *pdfMetrics) LineHeight(st layout.Style) float64 {
	return m.t.opts.LineHeight.Resolve(m.t.font(st).size)
}

// Ascent splits the extra leading evenly above and below the glyph box.
func (m *pdfMetrics) Ascent(st layout.Style) float64 {
	ascent, height := m.t.ascent(st)
	leading := m.LineHeight(st) - height
	if leading < 0 {
		leading = 0
	}
	return ascent + leading/2
}
