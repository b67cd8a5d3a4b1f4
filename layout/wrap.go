package layout

import (
	"math"
	"unicode"
)

// Metrics 提供逐字符的度量，NewTypesetter 基于它实现贪心折行。
type Metrics interface {
	Advance(r rune, st Style) float64
	LineHeight(st Style) float64
	Ascent(st Style) float64
}

// MonospaceMetrics 是固定字宽/行高的度量，适合测试与纯文本预览。
type MonospaceMetrics struct {
	CharWidth float64
	Line      float64
}

func (m MonospaceMetrics) Advance(r rune, _ Style) float64 {
	if r == '\n' || r == '\r' {
		return 0
	}
	return m.CharWidth
}

func (m MonospaceMetrics) LineHeight(Style) float64 { return m.Line }

func (m MonospaceMetrics) Ascent(Style) float64 { return m.Line * 0.8 }

// NewTypesetter 基于 Metrics 构造一个 Typesetter：优先在空白处折行，单词超宽时在词内拆分，并尊重显式换行。
func NewTypesetter(m Metrics) Typesetter {
	return &metricTypesetter{metrics: m}
}

type metricTypesetter struct {
	metrics Metrics
}

const measureEps = 1e-9

func (t *metricTypesetter) Measure(span TextSpan, start int, within Rect) (Range, Rect, error) {
	used := Rect{X: within.X, Y: within.Y, W: within.W}
	if span == nil {
		return Range{Start: start, End: start}, used, nil
	}
	n := span.Len()
	start = min(max(start, 0), n)
	if start >= n || within.Empty() {
		return Range{Start: start, End: start}, used, nil
	}
	b := lineBreaker{span: span, metrics: t.metrics, width: within.W, end: n}
	pos := start
	height := 0.0
	for pos < n {
		line := b.next(pos)
		if height+line.Height > within.H+measureEps {
			break
		}
		height += line.Height
		pos = line.Range.End
	}
	used.H = height
	return Range{Start: start, End: pos}, used, nil
}

func (t *metricTypesetter) LayoutLines(span TextSpan, r Range, width float64) ([]TextLine, error) {
	if span == nil {
		return nil, nil
	}
	end := min(r.End, span.Len())
	pos := max(r.Start, 0)
	b := lineBreaker{span: span, metrics: t.metrics, width: width, end: end}
	var lines []TextLine
	for pos < end {
		line := b.next(pos)
		lines = append(lines, line)
		pos = line.Range.End
	}
	return lines, nil
}

// lineBreaker 逐行产出 [start, end) 内的折行结果，保证每行至少消耗一个字符。
type lineBreaker struct {
	span    TextSpan
	metrics Metrics
	width   float64
	end     int
}

func (b *lineBreaker) next(start int) TextLine {
	limit := b.width
	if limit <= 0 {
		limit = math.MaxFloat64
	}
	current := 0.0
	lastBreak := -1
	prevSpace := false
	for i := start; i < b.end; i++ {
		r, st := b.span.RuneAt(i)
		if r == '\n' {
			return b.build(start, i, i+1)
		}
		space := unicode.IsSpace(r)
		if !space && prevSpace {
			lastBreak = i
		}
		w := b.metrics.Advance(r, st)
		// 行尾空白允许悬挂，不触发折行
		if !space && current+w > limit && i > start {
			if lastBreak > start {
				return b.build(start, lastBreak, lastBreak)
			}
			return b.build(start, i, i)
		}
		current += w
		prevSpace = space
	}
	return b.build(start, b.end, b.end)
}

func (b *lineBreaker) build(start, contentEnd, rangeEnd int) TextLine {
	line := TextLine{Range: Range{Start: start, End: rangeEnd}}
	runes := make([]rune, 0, contentEnd-start)
	x := 0.0
	visible := 0.0
	var seg *Segment
	var segRunes []rune
	flush := func() {
		if seg == nil {
			return
		}
		seg.Text = string(segRunes)
		line.Segments = append(line.Segments, *seg)
		seg = nil
		segRunes = segRunes[:0]
	}
	for i := start; i < contentEnd; i++ {
		r, st := b.span.RuneAt(i)
		if r == '\r' {
			continue
		}
		runes = append(runes, r)
		line.Height = math.Max(line.Height, b.metrics.LineHeight(st))
		line.Ascent = math.Max(line.Ascent, b.metrics.Ascent(st))
		if seg == nil || seg.Style != st {
			flush()
			seg = &Segment{Style: st, X: x}
		}
		w := b.metrics.Advance(r, st)
		segRunes = append(segRunes, r)
		seg.Width += w
		x += w
		if !unicode.IsSpace(r) {
			visible = x
		}
	}
	flush()
	if len(runes) == 0 {
		// 空行沿用换行符（或起始字符）的样式决定行高
		_, st := b.span.RuneAt(start)
		line.Height = b.metrics.LineHeight(st)
		line.Ascent = b.metrics.Ascent(st)
	}
	line.Content = string(runes)
	line.Width = visible
	return line
}
