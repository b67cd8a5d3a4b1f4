package fpdfrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"codeberg.org/go-pdf/fpdf"

	"github.com/ByLCY/quire/layout"
	"github.com/ByLCY/quire/renderer"
)

var (
	ErrNoPages   = errors.New("fpdf: 没有可打印的页面")
	ErrPageState = errors.New("fpdf: BeginPage/EndPage 调用顺序错误")
)

// PrintSink writes a printer-ready PDF spool. It draws with the faces its
// Typesetter measured, and every DrawText call is clipped to its rectangle.
type PrintSink struct {
	w    io.Writer
	ts   *Typesetter
	info renderer.DocumentInfo

	pdf   *fpdf.Fpdf
	tr    func(string) string
	fonts map[string]bool
	open  bool
	pages int
}

var _ renderer.OutputSink = (*PrintSink)(nil)

// NewPrintSink returns a sink that writes the spool to w on Close.
func NewPrintSink(w io.Writer, ts *Typesetter, info renderer.DocumentInfo) *PrintSink {
	return &PrintSink{w: w, ts: ts, info: info, fonts: map[string]bool{}}
}

func (s *PrintSink) BeginPage(_ int, page layout.Rect) error {
	if s.open {
		return ErrPageState
	}
	size := fpdf.SizeType{Wd: page.W, Ht: page.H}
	if s.pdf == nil {
		s.pdf = fpdf.NewCustom(&fpdf.InitType{OrientationStr: "P", UnitStr: "pt", Size: size})
		s.pdf.SetAutoPageBreak(false, 0)
		s.pdf.SetMargins(0, 0, 0)
		s.pdf.SetTitle(s.info.Title, true)
		s.pdf.SetAuthor(s.info.Author, true)
		s.pdf.SetSubject(s.info.Subject, true)
		s.pdf.SetKeywords(strings.Join(s.info.Keywords, ", "), true)
		s.pdf.SetCreator(s.info.Creator, true)
		s.tr = s.pdf.UnicodeTranslatorFromDescriptor("")
	}
	s.pdf.AddPageFormat("P", size)
	s.open = true
	s.pages++
	return s.pdf.Error()
}

func (s *PrintSink) DrawText(_ layout.TextSpan, lines []layout.TextLine, clip layout.Rect) error {
	if !s.open {
		return ErrPageState
	}
	s.pdf.ClipRect(clip.X, clip.Y, clip.W, clip.H, false)
	y := clip.Y
	for _, line := range lines {
		baseline := y + line.Ascent
		for _, seg := range line.Segments {
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			f := s.ts.font(seg.Style)
			text := seg.Text
			if f.ttf != nil {
				s.useFont(f)
			} else {
				text = s.tr(text)
			}
			s.pdf.SetFont(f.family, f.style, f.size)
			s.pdf.SetTextColor(seg.Style.Color.R, seg.Style.Color.G, seg.Style.Color.B)
			s.pdf.Text(clip.X+seg.X, baseline, text)
		}
		y += line.Height
	}
	s.pdf.ClipEnd()
	return s.pdf.Error()
}

// useFont embeds a TrueType face the first time the spool draws with it.
func (s *PrintSink) useFont(f face) {
	if s.fonts[f.family] {
		return
	}
	s.pdf.AddUTF8FontFromBytes(f.family, "", f.ttf)
	s.fonts[f.family] = true
}

func (s *PrintSink) EndPage() error {
	if !s.open {
		return ErrPageState
	}
	s.open = false
	return nil
}

// PageCount returns the number of pages begun so far.
func (s *PrintSink) PageCount() int { return s.pages }

// Close writes the spool.
func (s *PrintSink) Close() error {
	if s.pdf == nil {
		return ErrNoPages
	}
	if s.open {
		return ErrPageState
	}
	if err := s.pdf.Output(s.w); err != nil {
		return fmt.Errorf("写入打印文件失败: %w", err)
	}
	return nil
}

// Renderer prints a whole result into a PDF spool.
type Renderer struct {
	ts   *Typesetter
	deco renderer.Decorations
	info renderer.DocumentInfo
}

var _ renderer.Renderer = (*Renderer)(nil)

func NewRenderer(ts *Typesetter, deco renderer.Decorations, info renderer.DocumentInfo) *Renderer {
	return &Renderer{ts: ts, deco: deco, info: info}
}

func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	var buf bytes.Buffer
	sink := NewPrintSink(&buf, r.ts, r.info)
	if err := renderer.RenderAllPages(result, r.ts, sink, r.deco); err != nil {
		return nil, err
	}
	if err := sink.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
