package canvasrenderer

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"

	"github.com/ByLCY/quire/layout"
	"github.com/ByLCY/quire/renderer"
)

// DefaultDPMM is the preview resolution in dots per millimetre (about 100 dpi).
const DefaultDPMM = 4.0

// Surface is a raster preview target for one page. It is recycled by the
// virtual scroller: Clear drops the image so the surface can show another page.
type Surface struct {
	ts    *Typesetter
	dpmm  float64
	page  pageCanvas
	index int
	img   *image.RGBA
}

var _ renderer.PageSurface = (*Surface)(nil)

// NewSurface returns an empty preview surface rendering at dpmm dots per millimetre.
func NewSurface(ts *Typesetter, dpmm float64) *Surface {
	if dpmm <= 0 {
		dpmm = DefaultDPMM
	}
	return &Surface{ts: ts, dpmm: dpmm, index: -1}
}

func (s *Surface) BeginPage(index int, page layout.Rect) error {
	s.index = index
	s.img = nil
	s.page.begin(page, true)
	return nil
}

func (s *Surface) DrawText(_ layout.TextSpan, lines []layout.TextLine, clip layout.Rect) error {
	return s.page.drawLines(s.ts, lines, clip)
}

func (s *Surface) EndPage() error {
	if s.page.c == nil {
		return fmt.Errorf("EndPage 之前没有 BeginPage")
	}
	s.img = rasterizer.Draw(s.page.c, canvas.DPMM(s.dpmm), canvas.DefaultColorSpace)
	s.page.reset()
	return nil
}

func (s *Surface) Clear() {
	s.page.reset()
	s.img = nil
	s.index = -1
}

// Index returns the page currently shown, or -1.
func (s *Surface) Index() int { return s.index }

// Image returns the rendered page, or nil before EndPage.
func (s *Surface) Image() image.Image {
	if s.img == nil {
		return nil
	}
	return s.img
}

// WritePNG encodes the rendered page as PNG.
func (s *Surface) WritePNG(w io.Writer) error {
	if s.img == nil {
		return fmt.Errorf("第 %d 页尚未渲染", s.index+1)
	}
	return png.Encode(w, s.img)
}
