package layout

import "strings"

// PaperSize 以 pt 给出纵向纸张尺寸。
type PaperSize struct {
	Name   string
	Width  float64
	Height float64
}

var paperPresets = map[string]PaperSize{
	"LETTER": {Name: "Letter", Width: 612, Height: 792},
	"LEGAL":  {Name: "Legal", Width: 612, Height: 1008},
	"A3":     {Name: "A3", Width: 841.89, Height: 1190.55},
	"A4":     {Name: "A4", Width: 595.28, Height: 841.89},
	"A5":     {Name: "A5", Width: 419.53, Height: 595.28},
}

// LookupPaper 按名称（不区分大小写）查找预设纸张。
func LookupPaper(name string) (PaperSize, bool) {
	p, ok := paperPresets[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

// ComputeGeometry 根据页面设置计算一页的各个矩形。
// 顺序固定：先应用方向（交换宽高），再扣除边距，最后在启用时扣除页眉/页脚深度。
// 该函数是纯函数且不会失败：非法或过大的输入会被收敛为零面积矩形。
func ComputeGeometry(ps PageSetup) PageGeometry {
	w := nonNegative(ps.PaperWidth)
	h := nonNegative(ps.PaperHeight)
	if ps.Orientation == Landscape {
		w, h = h, w
	}
	page := Rect{X: 0, Y: 0, W: w, H: h}

	m := Margin{
		Top:    nonNegative(ps.Margin.Top),
		Right:  nonNegative(ps.Margin.Right),
		Bottom: nonNegative(ps.Margin.Bottom),
		Left:   nonNegative(ps.Margin.Left),
	}
	text := inset(page, m)

	geo := PageGeometry{Page: page, Text: text}
	content := text
	if ps.HasHeader {
		d := min(nonNegative(ps.HeaderDepth), content.H)
		geo.Header = Rect{X: text.X, Y: text.Y, W: text.W, H: d}
		content.Y += d
		content.H -= d
	} else {
		geo.Header = Rect{X: text.X, Y: text.Y, W: text.W}
	}
	if ps.HasFooter {
		d := min(nonNegative(ps.FooterDepth), content.H)
		geo.Footer = Rect{X: text.X, Y: text.Bottom() - d, W: text.W, H: d}
		content.H -= d
	} else {
		geo.Footer = Rect{X: text.X, Y: text.Bottom(), W: text.W}
	}
	content.H = nonNegative(content.H)
	geo.Content = content
	return geo
}

// inset 按边距收缩矩形；若边距之和超过尺寸，则对应方向收缩为 0 并保持在原矩形内。
func inset(r Rect, m Margin) Rect {
	x := min(m.Left, r.W)
	y := min(m.Top, r.H)
	return Rect{
		X: r.X + x,
		Y: r.Y + y,
		W: nonNegative(r.W - m.Left - m.Right),
		H: nonNegative(r.H - m.Top - m.Bottom),
	}
}
