package canvasrenderer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/quire/layout"
	"github.com/ByLCY/quire/renderer"
)

const clipEps = 1e-6

// Renderer draws layout results into a PDF via github.com/tdewolff/canvas.
type Renderer struct {
	ts   *Typesetter
	deco renderer.Decorations
	info renderer.DocumentInfo
}

var _ renderer.Renderer = (*Renderer)(nil)

// NewRenderer creates a PDF renderer that lays out lines with ts.
func NewRenderer(ts *Typesetter, deco renderer.Decorations, info renderer.DocumentInfo) *Renderer {
	return &Renderer{ts: ts, deco: deco, info: info}
}

// Render renders the result into a PDF byte slice.
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("缺少可渲染的页面")
	}

	var buf bytes.Buffer
	sink := NewPDFSink(&buf, r.ts, r.info)
	if err := renderer.RenderAllPages(result, r.ts, sink, r.deco); err != nil {
		return nil, err
	}
	if err := sink.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDFSink is an OutputSink writing one PDF page per layout page.
type PDFSink struct {
	w      io.Writer
	ts     *Typesetter
	info   renderer.DocumentInfo
	writer *pdf.PDF
	page   pageCanvas
}

var _ renderer.OutputSink = (*PDFSink)(nil)

func NewPDFSink(w io.Writer, ts *Typesetter, info renderer.DocumentInfo) *PDFSink {
	return &PDFSink{w: w, ts: ts, info: info}
}

func (s *PDFSink) BeginPage(index int, page layout.Rect) error {
	width, height := toMm(page.W), toMm(page.H)
	if s.writer == nil {
		s.writer = pdf.New(s.w, width, height, nil)
		s.applyMeta()
	} else {
		s.writer.NewPage(width, height)
	}
	s.page.begin(page, false)
	return nil
}

func (s *PDFSink) DrawText(_ layout.TextSpan, lines []layout.TextLine, clip layout.Rect) error {
	return s.page.drawLines(s.ts, lines, clip)
}

func (s *PDFSink) EndPage() error {
	if s.page.c == nil {
		return fmt.Errorf("EndPage 之前没有 BeginPage")
	}
	s.page.c.RenderTo(s.writer)
	s.page.reset()
	return nil
}

// Close finishes the PDF document.
func (s *PDFSink) Close() error {
	if s.writer == nil {
		return fmt.Errorf("缺少可渲染的页面")
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("写入 PDF 失败: %w", err)
	}
	return nil
}

func (s *PDFSink) applyMeta() {
	keywords := strings.Join(s.info.Keywords, ", ")
	s.writer.SetInfo(s.info.Title, s.info.Subject, keywords, s.info.Author, s.info.Creator)
}

// pageCanvas holds the canvas of the page being drawn.
type pageCanvas struct {
	c   *canvas.Canvas
	ctx *canvas.Context
}

func (p *pageCanvas) begin(page layout.Rect, background bool) {
	p.c = canvas.New(toMm(page.W), toMm(page.H))
	p.ctx = canvas.NewContext(p.c)
	p.ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点
	if background {
		p.ctx.SetFillColor(canvas.White)
		p.ctx.DrawPath(0, 0, canvas.Rectangle(toMm(page.W), toMm(page.H)))
	}
}

func (p *pageCanvas) reset() {
	p.c = nil
	p.ctx = nil
}

// drawLines draws lines top-down from the clip origin. Lines whose bottom
// falls outside the clip rectangle are skipped.
func (p *pageCanvas) drawLines(ts *Typesetter, lines []layout.TextLine, clip layout.Rect) error {
	if p.ctx == nil {
		return fmt.Errorf("DrawText 必须位于 BeginPage 与 EndPage 之间")
	}
	cursorY := clip.Y
	for _, line := range lines {
		if cursorY+line.Height > clip.Bottom()+clipEps {
			break
		}
		baseline := cursorY + line.Ascent
		for _, seg := range line.Segments {
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			face := ts.fonts.face(seg.Style)
			textLine := canvas.NewTextLine(face, seg.Text, canvas.Left)
			p.ctx.DrawText(toMm(clip.X+seg.X), toMm(baseline), textLine)
		}
		cursorY += line.Height
	}
	return nil
}
