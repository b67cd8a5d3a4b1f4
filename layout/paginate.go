package layout

import (
	"fmt"
	"math"
	"sort"
)

// Paginate 对一个文档快照执行完整的分页计算。
// 从字符 0 开始逐页调用 Typesetter 排入内容区；页内有脚注锚点时进入收敛循环，
// 直到预留的脚注高度稳定。空文档总是得到一页空白页。
func Paginate(snap Snapshot, ps PageSetup, ts Typesetter, opts Options) (*Result, error) {
	if ts == nil {
		return nil, ErrNoTypesetter
	}
	opts = opts.normalized()
	p := &paginator{
		ts:   ts,
		geo:  ComputeGeometry(ps),
		opts: opts,
		text: snap.Text,
	}
	if p.text != nil {
		p.n = p.text.Len()
	}
	p.notes = normalizeFootnotes(snap.Footnotes, p.n)

	pages, err := p.run()
	if err != nil {
		return nil, err
	}
	res := &Result{
		Pages:    pages,
		Geometry: p.geo,
		Text:     snap.Text,
	}
	for _, pg := range pages {
		res.TotalContentHeight += pg.Used.H
	}
	return res, nil
}

type paginator struct {
	ts    Typesetter
	geo   PageGeometry
	opts  Options
	text  TextSpan
	n     int
	notes []FootnoteRef
}

// attempt 记录收敛循环中的一轮结果。
type attempt struct {
	rng      Range
	used     Rect
	notes    []FootnoteRef
	heights  []float64
	need     float64
	reserved float64
}

func (a attempt) fits(eps float64) bool { return a.need <= a.reserved+eps }

// normalizeFootnotes 按锚点排序，并把越界锚点收敛到文档范围内；空文档没有可挂靠的位置，脚注被丢弃。
func normalizeFootnotes(in []FootnoteRef, n int) []FootnoteRef {
	if n == 0 || len(in) == 0 {
		return nil
	}
	out := make([]FootnoteRef, len(in))
	copy(out, in)
	for i := range out {
		out[i].Anchor = min(max(out[i].Anchor, 0), n-1)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Anchor < out[j].Anchor })
	return out
}

func (p *paginator) run() ([]PageRecord, error) {
	content := p.geo.Content
	if p.n == 0 {
		return []PageRecord{{
			Index:      0,
			Range:      Range{},
			Used:       content,
			Iterations: 0,
			Converged:  true,
		}}, nil
	}
	if content.Empty() {
		// 内容区没有面积：不可能排入任何文字，整篇文档落在唯一一页上，避免无限分页。
		p.opts.Logger.Warn("layout: 内容区域为零面积，文档收敛为单页",
			"content", content, "length", p.n)
		rec := PageRecord{
			Index:      0,
			Range:      Range{Start: 0, End: p.n},
			Used:       Rect{X: content.X, Y: content.Y, W: content.W},
			Iterations: 0,
			Converged:  true,
		}
		for _, fn := range p.notes {
			rec.Footnotes = append(rec.Footnotes, PlacedFootnote{FootnoteRef: fn, Rect: Rect{X: content.X, Y: content.Bottom()}})
		}
		rec.FootnoteBand = Rect{X: content.X, Y: content.Bottom(), W: content.W}
		return []PageRecord{rec}, nil
	}

	var pages []PageRecord
	start := 0
	for start < p.n {
		rec, err := p.layoutPage(len(pages), start)
		if err != nil {
			return nil, err
		}
		pages = append(pages, rec)
		start = rec.Range.End
	}
	return pages, nil
}

// layoutPage 排一页：脚注预留高度从 0 开始迭代到不动点，或在达到上限后采用最佳近似。
func (p *paginator) layoutPage(index, start int) (PageRecord, error) {
	var (
		attempts  []attempt
		chosen    attempt
		converged bool
		reserved  float64
	)
	for iter := 0; iter < p.opts.MaxFootnoteIterations; iter++ {
		a, err := p.try(start, reserved)
		if err != nil {
			return PageRecord{}, err
		}
		attempts = append(attempts, a)
		if math.Abs(a.need-reserved) <= p.opts.Epsilon {
			chosen = a
			converged = true
			break
		}
		reserved = a.need
	}

	if !converged {
		best, err := p.bestEffort(start, attempts)
		if err != nil {
			return PageRecord{}, err
		}
		chosen = best
		p.opts.Logger.Warn("layout: 脚注预留高度未收敛，采用近似结果",
			"page", index, "iterations", len(attempts), "range", chosen.rng, "footnotes", len(chosen.notes))
	}

	if chosen.rng.Empty() {
		forced, err := p.forceProgress(start)
		if err != nil {
			return PageRecord{}, err
		}
		chosen = forced
		p.opts.Logger.Warn("layout: 页面无法容纳任何内容，强制前进", "page", index, "range", chosen.rng)
	}

	return p.record(index, chosen, len(attempts), converged), nil
}

// try 在预留 reserved 高度后排正文，并测量落在该区间内的脚注所需高度。
func (p *paginator) try(start int, reserved float64) (attempt, error) {
	content := p.geo.Content
	within := Rect{X: content.X, Y: content.Y, W: content.W, H: nonNegative(content.H - reserved)}
	rng, used, err := p.ts.Measure(p.text, start, within)
	if err != nil {
		return attempt{}, fmt.Errorf("排版第 %d 个字符起的正文失败: %w", start, err)
	}
	rng = p.clampRange(start, rng)
	a := attempt{rng: rng, used: used, reserved: reserved}
	a.notes = p.footnotesIn(rng)
	a.heights, a.need, err = p.measureFootnotes(a.notes)
	if err != nil {
		return attempt{}, err
	}
	return a, nil
}

// clampRange 防御 Typesetter 返回越界或倒退的区间，保证页面区间单调。
func (p *paginator) clampRange(start int, r Range) Range {
	end := min(max(r.End, start), p.n)
	return Range{Start: start, End: end}
}

// bestEffort 在循环未收敛时选出放得下的结果：优先取循环中自洽（脚注不超出预留）的一轮，
// 再与“截断到首个放不下的脚注锚点所在行之前”的候选比较，取覆盖正文最多者。
func (p *paginator) bestEffort(start int, attempts []attempt) (attempt, error) {
	var best attempt
	found := false
	for _, a := range attempts {
		if !a.fits(p.opts.Epsilon) || a.rng.Empty() {
			continue
		}
		if !found || a.rng.End > best.rng.End {
			best, found = a, true
		}
	}
	if len(attempts) == 0 {
		return best, nil
	}

	// attempts[0] 没有预留任何高度，包含最多的正文与脚注。
	first := attempts[0]
	content := p.geo.Content
	for k := len(first.notes); k >= 0; k-- {
		need := p.bandHeight(first.heights[:k])
		if need > content.H+p.opts.Epsilon {
			continue
		}
		a, err := p.try(start, need)
		if err != nil {
			return attempt{}, err
		}
		if k < len(first.notes) && a.rng.End > first.notes[k].Anchor {
			cut, err := p.lineStart(a.rng, first.notes[k].Anchor)
			if err != nil {
				return attempt{}, err
			}
			if err := p.truncate(&a, cut); err != nil {
				return attempt{}, err
			}
		}
		if a.rng.Empty() || !a.fits(p.opts.Epsilon) {
			continue
		}
		if !found || a.rng.End > best.rng.End {
			best, found = a, true
		}
		break
	}
	if !found {
		return attempts[len(attempts)-1], nil
	}
	return best, nil
}

// lineStart 返回 r 排版后包含 pos 的那一行的起点；pos 落在首行时返回 pos 本身，保证截断后仍有正文。
func (p *paginator) lineStart(r Range, pos int) (int, error) {
	lines, err := p.ts.LayoutLines(p.text, r, p.geo.Content.W)
	if err != nil {
		return 0, fmt.Errorf("截断正文区间失败: %w", err)
	}
	cut := r.Start
	for _, ln := range lines {
		if ln.Range.Start > pos {
			break
		}
		cut = ln.Range.Start
	}
	if cut <= r.Start {
		return pos, nil
	}
	return cut, nil
}

// truncate 把 attempt 的正文区间截断到 end（不含），并重新计算正文高度与脚注。
func (p *paginator) truncate(a *attempt, end int) error {
	a.rng.End = max(end, a.rng.Start)
	lines, err := p.ts.LayoutLines(p.text, a.rng, p.geo.Content.W)
	if err != nil {
		return fmt.Errorf("截断正文区间失败: %w", err)
	}
	h := 0.0
	for _, ln := range lines {
		h += ln.Height
	}
	a.used.H = h
	a.notes = p.footnotesIn(a.rng)
	a.heights, a.need, err = p.measureFootnotes(a.notes)
	return err
}

// forceProgress 在任何配置都放不下内容时保证前进：先尝试不为脚注预留空间，仍为空则只放一个字符。
func (p *paginator) forceProgress(start int) (attempt, error) {
	a, err := p.try(start, 0)
	if err != nil {
		return attempt{}, err
	}
	if !a.rng.Empty() {
		return a, nil
	}
	a.rng = Range{Start: start, End: start + 1}
	if err := p.truncate(&a, start+1); err != nil {
		return attempt{}, err
	}
	return a, nil
}

// footnotesIn 返回锚点落在 r 内的脚注（保持锚点顺序）。
func (p *paginator) footnotesIn(r Range) []FootnoteRef {
	lo := sort.Search(len(p.notes), func(i int) bool { return p.notes[i].Anchor >= r.Start })
	hi := sort.Search(len(p.notes), func(i int) bool { return p.notes[i].Anchor >= r.End })
	if lo >= hi {
		return nil
	}
	return p.notes[lo:hi]
}

// measureFootnotes 按页面正文宽度排每条脚注，返回各自高度与脚注区总高度。
func (p *paginator) measureFootnotes(notes []FootnoteRef) ([]float64, float64, error) {
	if len(notes) == 0 {
		return nil, 0, nil
	}
	heights := make([]float64, len(notes))
	for i, fn := range notes {
		if fn.Content == nil {
			continue
		}
		lines, err := p.ts.LayoutLines(fn.Content, Range{Start: 0, End: fn.Content.Len()}, p.geo.Text.W)
		if err != nil {
			return nil, 0, fmt.Errorf("排版锚点 %d 的脚注失败: %w", fn.Anchor, err)
		}
		for _, ln := range lines {
			heights[i] += ln.Height
		}
	}
	return heights, p.bandHeight(heights), nil
}

func (p *paginator) bandHeight(heights []float64) float64 {
	if len(heights) == 0 {
		return 0
	}
	total := p.opts.FootnoteSeparator
	for _, h := range heights {
		total += h
	}
	return total
}

// record 生成最终的 PageRecord：脚注按锚点顺序自上而下堆叠，并整体贴住内容区底部。
func (p *paginator) record(index int, a attempt, iterations int, converged bool) PageRecord {
	content := p.geo.Content
	rec := PageRecord{
		Index:      index,
		Range:      a.rng,
		Used:       Rect{X: content.X, Y: content.Y, W: content.W, H: a.used.H},
		Iterations: iterations,
		Converged:  converged,
	}
	rec.FootnoteBand = Rect{X: content.X, Y: content.Bottom() - a.need, W: p.geo.Text.W, H: a.need}
	if len(a.notes) == 0 {
		rec.FootnoteBand = Rect{X: content.X, Y: content.Bottom(), W: p.geo.Text.W}
		return rec
	}
	rec.Footnotes = make([]PlacedFootnote, len(a.notes))
	y := content.Bottom()
	for i := len(a.notes) - 1; i >= 0; i-- {
		y -= a.heights[i]
		rec.Footnotes[i] = PlacedFootnote{
			FootnoteRef: a.notes[i],
			Rect:        Rect{X: content.X, Y: y, W: p.geo.Text.W, H: a.heights[i]},
		}
	}
	return rec
}
