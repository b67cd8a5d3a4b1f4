package renderer

import (
	"errors"
	"fmt"

	"github.com/ByLCY/quire/layout"
)

// Renderer 将布局结果输出为最终文件，例如 PDF。
// Render 返回生成的二进制数据（例如 PDF 字节切片）以及可能的错误。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}

// OutputSink 是绘制目标（屏幕 surface、打印页或 PDF 页）的最小抽象。
// DrawText 中的 lines 自 clip 左上角起自上而下排列，超出 clip 的部分不可见。
type OutputSink interface {
	BeginPage(index int, page layout.Rect) error
	DrawText(span layout.TextSpan, lines []layout.TextLine, clip layout.Rect) error
	EndPage() error
}

// Expander 展开页眉/页脚模板，index 从 0 开始。
type Expander interface {
	Expand(template string, index, pages int) string
}

// DocumentInfo 为写入 PDF 信息字典的文档属性。
type DocumentInfo struct {
	Title    string
	Subject  string
	Keywords []string
	Author   string
	Creator  string
}

// Decorations 描述每页的页眉与页脚文字。
type Decorations struct {
	HeaderText string
	FooterText string
	Style      layout.Style
	Fields     Expander
}

// DecorationsFor 从页面设置中取出页眉/页脚模板；未启用时对应文字为空。
func DecorationsFor(ps layout.PageSetup, st layout.Style, fields Expander) Decorations {
	d := Decorations{Style: st, Fields: fields}
	if ps.HasHeader {
		d.HeaderText = ps.HeaderText
	}
	if ps.HasFooter {
		d.FooterText = ps.FooterText
	}
	return d
}

func (d Decorations) expand(template string, index, pages int) string {
	if d.Fields == nil {
		return template
	}
	return d.Fields.Expand(template, index, pages)
}

var ErrNoResult = errors.New("renderer: 布局结果为空")

// DrawPage 是预览、打印与 PDF 共用的单页绘制流程：
// 页眉、裁剪到 Used 的正文、自下而上绘制在脚注区内的脚注，最后是页脚。
func DrawPage(sink OutputSink, ts layout.Typesetter, res *layout.Result, rec layout.PageRecord, deco Decorations) error {
	if res == nil {
		return ErrNoResult
	}
	geo := res.Geometry
	if err := sink.BeginPage(rec.Index, geo.Page); err != nil {
		return err
	}
	if err := drawCaption(sink, ts, deco.expand(deco.HeaderText, rec.Index, res.PageCount()), deco.Style, geo.Header); err != nil {
		return fmt.Errorf("绘制页眉失败: %w", err)
	}

	if !rec.Range.Empty() && res.Text != nil {
		lines, err := ts.LayoutLines(res.Text, rec.Range, geo.Content.W)
		if err != nil {
			return fmt.Errorf("排版正文失败: %w", err)
		}
		if err := sink.DrawText(res.Text, lines, rec.Used); err != nil {
			return err
		}
	}

	for i := len(rec.Footnotes) - 1; i >= 0; i-- {
		fn := rec.Footnotes[i]
		if fn.Content == nil || fn.Content.Len() == 0 {
			continue
		}
		lines, err := ts.LayoutLines(fn.Content, layout.Range{Start: 0, End: fn.Content.Len()}, fn.Rect.W)
		if err != nil {
			return fmt.Errorf("排版锚点 %d 的脚注失败: %w", fn.Anchor, err)
		}
		if err := sink.DrawText(fn.Content, lines, fn.Rect); err != nil {
			return err
		}
	}

	if err := drawCaption(sink, ts, deco.expand(deco.FooterText, rec.Index, res.PageCount()), deco.Style, geo.Footer); err != nil {
		return fmt.Errorf("绘制页脚失败: %w", err)
	}
	return sink.EndPage()
}

func drawCaption(sink OutputSink, ts layout.Typesetter, text string, st layout.Style, band layout.Rect) error {
	if text == "" || band.Empty() {
		return nil
	}
	span := layout.NewPlainText(text, st)
	lines, err := ts.LayoutLines(span, layout.Range{Start: 0, End: span.Len()}, band.W)
	if err != nil {
		return err
	}
	return sink.DrawText(span, lines, band)
}

// RenderAllPages 是打印/PDF 路径：按页序一次性绘制所有页面。
func RenderAllPages(res *layout.Result, ts layout.Typesetter, sink OutputSink, deco Decorations) error {
	if res == nil {
		return ErrNoResult
	}
	for _, rec := range res.Pages {
		if err := DrawPage(sink, ts, res, rec, deco); err != nil {
			return fmt.Errorf("渲染第 %d 页失败: %w", rec.Index+1, err)
		}
	}
	return nil
}
