package renderer

import (
	"fmt"
	"strings"

	"github.com/ByLCY/quire/layout"
)

// RecordedBlock 是一次 DrawText 调用。
type RecordedBlock struct {
	Clip  layout.Rect    `json:"clip"`
	Lines []string       `json:"lines"`
	Range []layout.Range `json:"ranges"`
}

// RecordedPage 是一次 BeginPage/EndPage 之间的全部绘制。
type RecordedPage struct {
	Index  int             `json:"index"`
	Page   layout.Rect     `json:"page"`
	Blocks []RecordedBlock `json:"blocks"`
}

// RecordingSink 记录绘制序列，用于调试输出以及预览与打印的一致性检查。
// 它同时实现 scroll.Drawable，可直接作为预览 surface。
type RecordingSink struct {
	Pages []RecordedPage
	open  bool
}

func (r *RecordingSink) BeginPage(index int, page layout.Rect) error {
	if r.open {
		return fmt.Errorf("renderer: 第 %d 页尚未结束", r.Pages[len(r.Pages)-1].Index)
	}
	r.Pages = append(r.Pages, RecordedPage{Index: index, Page: page})
	r.open = true
	return nil
}

func (r *RecordingSink) DrawText(_ layout.TextSpan, lines []layout.TextLine, clip layout.Rect) error {
	if !r.open {
		return fmt.Errorf("renderer: DrawText 必须位于 BeginPage 与 EndPage 之间")
	}
	blk := RecordedBlock{Clip: clip}
	for _, ln := range lines {
		blk.Lines = append(blk.Lines, ln.Content)
		blk.Range = append(blk.Range, ln.Range)
	}
	pg := &r.Pages[len(r.Pages)-1]
	pg.Blocks = append(pg.Blocks, blk)
	return nil
}

func (r *RecordingSink) EndPage() error {
	if !r.open {
		return fmt.Errorf("renderer: EndPage 之前没有 BeginPage")
	}
	r.open = false
	return nil
}

// Clear 丢弃已记录的内容。
func (r *RecordingSink) Clear() {
	r.Pages = nil
	r.open = false
}

// String 以纯文本形式输出记录，便于比对。
func (r *RecordingSink) String() string {
	var b strings.Builder
	for _, pg := range r.Pages {
		fmt.Fprintf(&b, "page %d %.2fx%.2f\n", pg.Index+1, pg.Page.W, pg.Page.H)
		for _, blk := range pg.Blocks {
			fmt.Fprintf(&b, "  block @(%.2f,%.2f %.2fx%.2f) %d lines\n", blk.Clip.X, blk.Clip.Y, blk.Clip.W, blk.Clip.H, len(blk.Lines))
			for _, ln := range blk.Lines {
				fmt.Fprintf(&b, "    %s\n", ln)
			}
		}
	}
	return b.String()
}
