package layout

import (
	"math"
	"unicode/utf8"
)

// 该文件定义分页布局的基础数据类型，供排版、分页引擎、虚拟滚动与各渲染器共用。
// 所有长度单位均为 pt，坐标以页面左上角为原点，y 轴向下。

// Rect 表示页面坐标系中的矩形。
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Bottom 返回矩形底边的 y 坐标。
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Right 返回矩形右边的 x 坐标。
func (r Rect) Right() float64 { return r.X + r.W }

// Empty 表示矩形没有可用面积。
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Contains 判断 o 是否完全落在 r 内（允许 eps 误差）。
func (r Rect) Contains(o Rect, eps float64) bool {
	return o.X >= r.X-eps && o.Y >= r.Y-eps && o.Right() <= r.Right()+eps && o.Bottom() <= r.Bottom()+eps
}

// Range 是字符（rune）下标的半开区间 [Start, End)。
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len 返回区间长度。
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty 表示区间不包含任何字符。
func (r Range) Empty() bool { return r.Len() == 0 }

// Contains 判断下标 i 是否位于区间内。
func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// Color 采用 0-255 的 RGB 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Style 描述一段文本的字符格式。Size 为 0 时使用排版后端的默认字号。
type Style struct {
	Font   string  `json:"font,omitempty"`
	Size   float64 `json:"size,omitempty"`
	Bold   bool    `json:"bold,omitempty"`
	Italic bool    `json:"italic,omitempty"`
	Color  Color   `json:"color"`
}

// TextSpan 是文档样式文本的只读视图，在一次布局计算期间保持不变。
type TextSpan interface {
	Len() int
	RuneAt(i int) (rune, Style)
}

// PlainText 是单一样式的 TextSpan，用于脚注正文与页眉/页脚文字。
type PlainText struct {
	runes []rune
	style Style
}

// NewPlainText 以给定样式包装字符串。
func NewPlainText(s string, st Style) *PlainText {
	return &PlainText{runes: []rune(s), style: st}
}

func (p *PlainText) Len() int {
	if p == nil {
		return 0
	}
	return len(p.runes)
}

func (p *PlainText) RuneAt(i int) (rune, Style) {
	if p == nil || i < 0 || i >= len(p.runes) {
		return utf8.RuneError, Style{}
	}
	return p.runes[i], p.style
}

// SpanString 返回 span 中 r 区间的纯文本。
func SpanString(span TextSpan, r Range) string {
	if span == nil {
		return ""
	}
	start := max(r.Start, 0)
	end := min(r.End, span.Len())
	if end <= start {
		return ""
	}
	buf := make([]rune, 0, end-start)
	for i := start; i < end; i++ {
		ch, _ := span.RuneAt(i)
		buf = append(buf, ch)
	}
	return string(buf)
}

// FootnoteRef 把一段脚注内容挂在正文的某个字符位置上。
type FootnoteRef struct {
	Anchor  int      `json:"anchor"`
	Content TextSpan `json:"-"`
}

// PlacedFootnote 记录脚注在所在页面脚注区中的绘制矩形。
type PlacedFootnote struct {
	FootnoteRef
	Rect Rect `json:"rect"`
}

// PageRecord 描述一页：放在该页的正文字符区间、实际占用的矩形以及脚注。
type PageRecord struct {
	Index        int              `json:"index"`
	Range        Range            `json:"range"`
	Used         Rect             `json:"used"`
	Footnotes    []PlacedFootnote `json:"footnotes,omitempty"`
	FootnoteBand Rect             `json:"footnoteBand"`
	// Iterations 为脚注收敛循环实际执行的轮数（无脚注时为 1）。
	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`
}

// Result 是某一文档状态下字符区间到页面的权威映射。失效后直接丢弃，不做原地修改。
type Result struct {
	Pages              []PageRecord `json:"pages"`
	Geometry           PageGeometry `json:"geometry"`
	TotalContentHeight float64      `json:"totalContentHeight"`
	Generation         uint64       `json:"generation"`
	// Text 为本次计算所用的文本快照，渲染器据此绘制，保证与分页一致。
	Text TextSpan `json:"-"`
}

// TextLine 表示排版后的一行文本。Range 覆盖该行在 span 中消耗的全部字符（包括行尾换行符）。
type TextLine struct {
	Range    Range     `json:"range"`
	Content  string    `json:"content"`
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Ascent   float64   `json:"ascent"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment 是一行中样式相同的连续文字，X 为相对行首的偏移。
type Segment struct {
	Text  string  `json:"text"`
	Style Style   `json:"style"`
	X     float64 `json:"x"`
	Width float64 `json:"width"`
}

// Orientation 表示纸张方向。
type Orientation int

const (
	Portrait Orientation = iota
	Landscape
)

func (o Orientation) String() string {
	if o == Landscape {
		return "landscape"
	}
	return "portrait"
}

// Margin 以 pt 为单位。
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// PageSetup 是页面设置的只读快照。纸张尺寸按纵向给出，横向时先交换宽高再扣除边距。
type PageSetup struct {
	PaperWidth  float64     `json:"paperWidth"`
	PaperHeight float64     `json:"paperHeight"`
	Orientation Orientation `json:"orientation"`
	Margin      Margin      `json:"margin"`
	HeaderDepth float64     `json:"headerDepth"`
	FooterDepth float64     `json:"footerDepth"`
	HasHeader   bool        `json:"hasHeader"`
	HasFooter   bool        `json:"hasFooter"`
	// HeaderText/FooterText 为页眉/页脚模板，支持 ${page} 等字段。
	HeaderText string `json:"headerText,omitempty"`
	FooterText string `json:"footerText,omitempty"`
}

// PageGeometry 是由 PageSetup 推导出的页面矩形集合：Page ⊇ Text ⊇ Content。
type PageGeometry struct {
	Page    Rect `json:"page"`
	Text    Rect `json:"text"`
	Content Rect `json:"content"`
	Header  Rect `json:"header"`
	Footer  Rect `json:"footer"`
}

// nonNegative 把负数与 NaN 收敛为 0。
func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}
