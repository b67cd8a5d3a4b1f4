package layout

import (
	"errors"
	"log/slog"
)

// Typesetter 是底层的排版原语：把样式文本排入给定矩形并报告消耗了多少字符。
// 相同输入必须得到相同输出。
type Typesetter interface {
	// Measure 从 start 开始尽可能多地把 span 排入 within，返回消耗的字符区间与实际使用的矩形。
	Measure(span TextSpan, start int, within Rect) (Range, Rect, error)
	// LayoutLines 把 r 区间按 width 折行，供渲染器绘制。
	LayoutLines(span TextSpan, r Range, width float64) ([]TextLine, error)
}

// Snapshot 是文档在某一时刻的不可变视图。
type Snapshot struct {
	Text      TextSpan
	Footnotes []FootnoteRef
	Version   uint64
}

// Source 提供文档快照。若同时实现 Subscriber，引擎会在文档变化时自动失效。
type Source interface {
	Snapshot() Snapshot
}

// Subscriber 在内容变化时回调 fn，返回取消订阅的函数。
type Subscriber interface {
	Subscribe(fn func()) (cancel func())
}

// Options 配置分页引擎。
type Options struct {
	// MaxFootnoteIterations 为脚注收敛循环的上限。
	MaxFootnoteIterations int
	// Epsilon 为判断脚注预留高度收敛的误差（pt）。
	Epsilon float64
	// FootnoteSeparator 为正文与脚注区之间的间隔（pt），仅在该页有脚注时预留。
	FootnoteSeparator float64
	Logger            *slog.Logger
}

// DefaultOptions 返回默认配置。
func DefaultOptions() Options {
	return Options{
		MaxFootnoteIterations: 10,
		Epsilon:               0.01,
	}
}

func (o Options) normalized() Options {
	if o.MaxFootnoteIterations <= 0 {
		o.MaxFootnoteIterations = 10
	}
	if o.Epsilon <= 0 {
		o.Epsilon = 0.01
	}
	o.FootnoteSeparator = nonNegative(o.FootnoteSeparator)
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

var (
	ErrNoTypesetter = errors.New("layout: 缺少排版后端 Typesetter")
	ErrNoSource     = errors.New("layout: 缺少文档来源")
)
