// Package scroll implements virtual scrolling over a paginated layout: only the
// pages near the viewport are bound to drawable surfaces, and idle surfaces are
// recycled through a small bounded pool.
//
// A Scroller is owned by a single goroutine (the UI thread) and does no locking.
package scroll

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ByLCY/quire/layout"
)

var (
	// ErrNotVisible is returned when binding a page outside the current window.
	ErrNotVisible = errors.New("scroll: page is outside the visible window")
	// ErrNoResult is returned when no layout result has been set yet.
	ErrNoResult = errors.New("scroll: no layout result")
)

const (
	DefaultSpacing     = 16
	DefaultBufferPages = 2
	DefaultPoolSize    = 10
)

// Drawable is the backing object of a surface, e.g. a raster canvas.
type Drawable interface {
	// Clear drops any drawn content so the drawable can be reused for another page.
	Clear()
}

// Options configures a Scroller. Zero values select the defaults.
type Options struct {
	// Spacing is the vertical gap between consecutive pages, in points.
	// A negative value means no gap.
	Spacing float64
	// BufferPages extends the visible range on both sides. A negative value means none.
	BufferPages int
	// PoolSize bounds the number of idle surfaces kept for reuse.
	PoolSize int
	// NewDrawable allocates the backing object of a new surface. It may be nil.
	NewDrawable func() Drawable
}

func (o Options) normalized() Options {
	if o.Spacing < 0 {
		o.Spacing = 0
	} else if o.Spacing == 0 {
		o.Spacing = DefaultSpacing
	}
	if o.BufferPages < 0 {
		o.BufferPages = 0
	} else if o.BufferPages == 0 {
		o.BufferPages = DefaultBufferPages
	}
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	return o
}

// VisibleWindow is the range of page indices that may currently hold a surface.
type VisibleWindow struct {
	Range       layout.Range `json:"range"`
	BufferPages int          `json:"bufferPages"`
}

// Len returns the number of pages in the window.
func (w VisibleWindow) Len() int { return w.Range.Len() }

// Surface is a recyclable drawing target bound to at most one page.
type Surface struct {
	Drawable Drawable
	page     layout.PageRecord
	bound    bool
}

// Page returns the page record the surface is bound to.
func (s *Surface) Page() (layout.PageRecord, bool) { return s.page, s.bound }

// Stats counts surface allocations and recycling.
type Stats struct {
	Allocated int `json:"allocated"`
	Reused    int `json:"reused"`
	Discarded int `json:"discarded"`
	Pooled    int `json:"pooled"`
	Bound     int `json:"bound"`
	MaxBound  int `json:"maxBound"`
}

// Scroller tracks the visible window of a layout result and the surfaces bound to it.
type Scroller struct {
	opts Options
	res  *layout.Result
	// tops[i] is the top of page i; tops[n] is the content height plus one spacing.
	tops []float64

	window   VisibleWindow
	offset   float64
	viewport float64

	bound map[int]*Surface
	pool  []*Surface
	stats Stats
}

// New returns a Scroller with no layout result.
func New(opts Options) *Scroller {
	opts = opts.normalized()
	return &Scroller{
		opts:   opts,
		bound:  map[int]*Surface{},
		window: VisibleWindow{BufferPages: opts.BufferPages},
	}
}

// Result returns the layout result currently in use.
func (s *Scroller) Result() *layout.Result { return s.res }

// SetResult swaps in a new layout result. Surfaces bound to pages that still
// exist are rebound to the new records; the others are released. The window is
// recomputed for the last scroll position and the diff against the previous
// window is returned.
func (s *Scroller) SetResult(res *layout.Result) (toCreate, toRemove []int) {
	s.res = res
	s.tops = s.tops[:0]
	n := res.PageCount()
	top := 0.0
	for i := 0; i < n; i++ {
		s.tops = append(s.tops, top)
		top += s.pageHeight(i) + s.opts.Spacing
	}
	s.tops = append(s.tops, top)

	for idx, sf := range s.bound {
		rec, ok := res.Page(idx)
		if !ok {
			s.release(idx, sf)
			continue
		}
		sf.page = rec
	}
	toCreate, toRemove = s.UpdateVisibleRange(s.offset, s.viewport)
	for _, idx := range toRemove {
		s.UnbindSurface(idx)
	}
	return toCreate, toRemove
}

func (s *Scroller) pageHeight(i int) float64 {
	if s.res == nil {
		return 0
	}
	return s.res.Geometry.Page.H
}

// PageCount returns the number of pages of the current result.
func (s *Scroller) PageCount() int { return s.res.PageCount() }

// PageTop returns the vertical position of page i in scroll coordinates.
func (s *Scroller) PageTop(i int) (float64, bool) {
	if i < 0 || i >= s.PageCount() {
		return 0, false
	}
	return s.tops[i], true
}

// ContentHeight is the total scrollable height: all pages plus the gaps between them.
func (s *Scroller) ContentHeight() float64 {
	n := s.PageCount()
	if n == 0 {
		return 0
	}
	return s.tops[n] - s.opts.Spacing
}

// Window computes the visible window for a scroll position without changing any state.
func (s *Scroller) Window(offset, viewport float64) VisibleWindow {
	w := VisibleWindow{BufferPages: s.opts.BufferPages}
	n := s.PageCount()
	if n == 0 {
		return w
	}
	offset = max(offset, 0)
	viewport = max(viewport, 0)

	first := sort.Search(n, func(i int) bool { return s.tops[i]+s.pageHeight(i) > offset })
	if first == n {
		first = n - 1
	}
	end := offset + viewport
	last := sort.Search(n, func(i int) bool { return s.tops[i] >= end }) - 1
	if last < first {
		last = first
	}
	w.Range = layout.Range{
		Start: max(first-s.opts.BufferPages, 0),
		End:   min(last+s.opts.BufferPages+1, n),
	}
	return w
}

// CurrentWindow returns the window computed by the last UpdateVisibleRange.
func (s *Scroller) CurrentWindow() VisibleWindow { return s.window }

// UpdateVisibleRange moves the window to a new scroll position and reports the
// pages that entered and left it, both sorted ascending. Surfaces are not
// touched; callers unbind toRemove and bind toCreate.
func (s *Scroller) UpdateVisibleRange(offset, viewport float64) (toCreate, toRemove []int) {
	s.offset, s.viewport = offset, viewport
	prev := s.window
	next := s.Window(offset, viewport)
	s.window = next
	for i := prev.Range.Start; i < prev.Range.End; i++ {
		if !next.Range.Contains(i) {
			toRemove = append(toRemove, i)
		}
	}
	for i := next.Range.Start; i < next.Range.End; i++ {
		if !prev.Range.Contains(i) {
			toCreate = append(toCreate, i)
		}
	}
	return toCreate, toRemove
}

// VisiblePages returns the records of the pages in the window for a scroll position.
func (s *Scroller) VisiblePages(offset, viewport float64) []layout.PageRecord {
	w := s.Window(offset, viewport)
	out := make([]layout.PageRecord, 0, w.Len())
	for i := w.Range.Start; i < w.Range.End; i++ {
		out = append(out, s.res.Pages[i])
	}
	return out
}

// BindSurface binds a surface to page i, reusing an idle one when available.
// Binding an already bound page returns its surface.
func (s *Scroller) BindSurface(i int) (*Surface, error) {
	if s.res == nil {
		return nil, ErrNoResult
	}
	if !s.window.Range.Contains(i) {
		return nil, fmt.Errorf("bind page %d, window %v: %w", i, s.window.Range, ErrNotVisible)
	}
	if sf, ok := s.bound[i]; ok {
		return sf, nil
	}
	var sf *Surface
	if n := len(s.pool); n > 0 {
		sf = s.pool[n-1]
		s.pool[n-1] = nil
		s.pool = s.pool[:n-1]
		s.stats.Reused++
	} else {
		sf = &Surface{}
		if s.opts.NewDrawable != nil {
			sf.Drawable = s.opts.NewDrawable()
		}
		s.stats.Allocated++
	}
	sf.page = s.res.Pages[i]
	sf.bound = true
	s.bound[i] = sf
	s.stats.MaxBound = max(s.stats.MaxBound, len(s.bound))
	return sf, nil
}

// UnbindSurface returns the surface of page i to the pool, or discards it when the pool is full.
func (s *Scroller) UnbindSurface(i int) {
	if sf, ok := s.bound[i]; ok {
		s.release(i, sf)
	}
}

func (s *Scroller) release(i int, sf *Surface) {
	delete(s.bound, i)
	sf.page = layout.PageRecord{}
	sf.bound = false
	if sf.Drawable != nil {
		sf.Drawable.Clear()
	}
	if len(s.pool) >= s.opts.PoolSize {
		s.stats.Discarded++
		return
	}
	s.pool = append(s.pool, sf)
}

// Bound returns the surface bound to page i.
func (s *Scroller) Bound(i int) (*Surface, bool) {
	sf, ok := s.bound[i]
	return sf, ok
}

// BoundPages returns the indices of all bound pages in ascending order.
func (s *Scroller) BoundPages() []int {
	out := make([]int, 0, len(s.bound))
	for i := range s.bound {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (s *Scroller) BoundCount() int { return len(s.bound) }

// Stats returns allocation counters along with the current pool and bound sizes.
func (s *Scroller) Stats() Stats {
	st := s.stats
	st.Pooled = len(s.pool)
	st.Bound = len(s.bound)
	return st
}
