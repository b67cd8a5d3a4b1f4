package renderer

import (
	"fmt"
	"log/slog"

	"github.com/ByLCY/quire/layout"
	"github.com/ByLCY/quire/scroll"
)

// LayoutSource 是预览所需的非阻塞布局接口，由 *layout.Engine 实现。
type LayoutSource interface {
	Current() *layout.Result
	Stale() bool
	Refresh() <-chan struct{}
}

var _ LayoutSource = (*layout.Engine)(nil)

// PageSurface 是可复用的预览绘制目标。
type PageSurface interface {
	scroll.Drawable
	OutputSink
}

// Preview 只绘制视口附近的页面。它从不等待布局计算：结果过期时继续使用上一次的结果，
// 并在后台刷新，新结果就绪后的下一次 Scroll 再整体替换。
// Preview 与 scroll.Scroller 一样只能在单个 goroutine 中使用。
type Preview struct {
	src      LayoutSource
	ts       layout.Typesetter
	deco     Decorations
	scroller *scroll.Scroller
	pending  <-chan struct{}
	log      *slog.Logger
}

// NewPreview 创建预览适配器；newSurface 为每个新 surface 分配绘制目标。
func NewPreview(src LayoutSource, ts layout.Typesetter, deco Decorations, opts scroll.Options, newSurface func() PageSurface, logger *slog.Logger) *Preview {
	if logger == nil {
		logger = slog.Default()
	}
	opts.NewDrawable = func() scroll.Drawable { return newSurface() }
	return &Preview{
		src:      src,
		ts:       ts,
		deco:     deco,
		scroller: scroll.New(opts),
		log:      logger,
	}
}

// Scroller 返回内部的虚拟滚动器。
func (p *Preview) Scroller() *scroll.Scroller { return p.scroller }

// Pending 返回正在进行的后台刷新；没有刷新时为 nil。
func (p *Preview) Pending() <-chan struct{} { return p.pending }

// Scroll 把视口移动到 offset，先释放离开窗口的页面，再绑定并绘制进入窗口的页面。
func (p *Preview) Scroll(offset, viewport float64) error {
	if err := p.sync(); err != nil {
		return err
	}
	if p.scroller.Result() == nil {
		p.scroller.UpdateVisibleRange(offset, viewport)
		return nil
	}
	toCreate, toRemove := p.scroller.UpdateVisibleRange(offset, viewport)
	for _, i := range toRemove {
		p.scroller.UnbindSurface(i)
	}
	return p.bindAll(toCreate)
}

// sync 在新结果就绪时替换，并在结果过期时触发后台刷新。
func (p *Preview) sync() error {
	if p.pending != nil {
		select {
		case <-p.pending:
			p.pending = nil
		default:
		}
	}
	if cur := p.src.Current(); cur != nil && cur != p.scroller.Result() {
		rebound := p.scroller.BoundPages()
		toCreate, _ := p.scroller.SetResult(cur)
		p.log.Debug("renderer: 预览切换到新的布局结果", "generation", cur.Generation, "pages", cur.PageCount())
		for _, i := range rebound {
			if sf, ok := p.scroller.Bound(i); ok {
				if err := p.draw(sf); err != nil {
					return err
				}
			}
		}
		if err := p.bindAll(toCreate); err != nil {
			return err
		}
	}
	if p.pending == nil && p.src.Stale() {
		p.pending = p.src.Refresh()
	}
	return nil
}

func (p *Preview) bindAll(pages []int) error {
	for _, i := range pages {
		sf, err := p.scroller.BindSurface(i)
		if err != nil {
			return err
		}
		if err := p.draw(sf); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preview) draw(sf *scroll.Surface) error {
	rec, ok := sf.Page()
	if !ok {
		return nil
	}
	target, ok := sf.Drawable.(PageSurface)
	if !ok {
		return fmt.Errorf("renderer: 第 %d 页的 surface 不可绘制", rec.Index+1)
	}
	target.Clear()
	if err := DrawPage(target, p.ts, p.scroller.Result(), rec, p.deco); err != nil {
		return fmt.Errorf("预览第 %d 页失败: %w", rec.Index+1, err)
	}
	return nil
}

// VisiblePages 返回 offset 处视口所覆盖（含缓冲）的页面。
func (p *Preview) VisiblePages(offset, viewport float64) []layout.PageRecord {
	if p.scroller.Result() == nil {
		return nil
	}
	return p.scroller.VisiblePages(offset, viewport)
}

// Surface 返回第 i 页当前绑定的绘制目标。
func (p *Preview) Surface(i int) (PageSurface, bool) {
	sf, ok := p.scroller.Bound(i)
	if !ok {
		return nil, false
	}
	ps, ok := sf.Drawable.(PageSurface)
	return ps, ok
}
