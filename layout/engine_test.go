package layout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// stubSource 是可订阅的内存文档。
type stubSource struct {
	mu   sync.Mutex
	snap Snapshot
	subs map[int]func()
	next int
}

func newStubSource(text TextSpan) *stubSource {
	return &stubSource{snap: Snapshot{Text: text, Version: 1}, subs: map[int]func(){}}
}

func (s *stubSource) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSource) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *stubSource) set(text TextSpan) {
	s.mu.Lock()
	s.snap = Snapshot{Text: text, Version: s.snap.Version + 1}
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// countingTypesetter 统计分页次数（每次分页都会从字符 0 调用 Measure），并可阻塞或注入失败。
type countingTypesetter struct {
	inner    Typesetter
	runs     atomic.Int32
	fail     atomic.Bool
	gate     chan struct{}
	started  chan struct{}
	startOne sync.Once
}

func newCountingTypesetter() *countingTypesetter {
	return &countingTypesetter{inner: NewTypesetter(MonospaceMetrics{CharWidth: 6, Line: 10})}
}

func (c *countingTypesetter) Measure(span TextSpan, start int, within Rect) (Range, Rect, error) {
	if start == 0 {
		c.runs.Add(1)
	}
	if c.started != nil {
		c.startOne.Do(func() { close(c.started) })
	}
	if c.gate != nil {
		<-c.gate
	}
	if c.fail.Load() {
		return Range{}, Rect{}, errors.New("typesetter failure")
	}
	return c.inner.Measure(span, start, within)
}

func (c *countingTypesetter) LayoutLines(span TextSpan, r Range, width float64) ([]TextLine, error) {
	return c.inner.LayoutLines(span, r, width)
}

func newTestEngine(t *testing.T, src Source, ts Typesetter) *Engine {
	t.Helper()
	e, err := NewEngine(src, letterSetup(), ts, DefaultOptions())
	if err != nil {
		t.Fatalf("NewEngine 返回错误: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func TestNewEngineValidatesArguments(t *testing.T) {
	if _, err := NewEngine(nil, letterSetup(), newCountingTypesetter(), DefaultOptions()); !errors.Is(err, ErrNoSource) {
		t.Fatalf("缺少文档来源应报错，实际 %v", err)
	}
	if _, err := NewEngine(newStubSource(nil), letterSetup(), nil, DefaultOptions()); !errors.Is(err, ErrNoTypesetter) {
		t.Fatalf("缺少 Typesetter 应报错，实际 %v", err)
	}
}

func TestEngineCachesResult(t *testing.T) {
	ts := newCountingTypesetter()
	e := newTestEngine(t, newStubSource(bodyLines(130)), ts)
	if e.State() != Dirty || e.Current() != nil {
		t.Fatalf("初始状态应为 dirty 且没有结果")
	}
	ctx := context.Background()
	first, err := e.Result(ctx)
	if err != nil {
		t.Fatalf("Result 返回错误: %v", err)
	}
	second, err := e.Result(ctx)
	if err != nil {
		t.Fatalf("Result 返回错误: %v", err)
	}
	if first != second || ts.runs.Load() != 1 {
		t.Fatalf("同一代应只计算一次: runs=%d", ts.runs.Load())
	}
	if e.State() != Clean || e.Stale() || first.Generation != e.Generation() {
		t.Fatalf("计算后应为 clean: state=%v gen=%d", e.State(), first.Generation)
	}
}

func TestEngineConcurrentReadersShareComputation(t *testing.T) {
	ts := newCountingTypesetter()
	ts.gate = make(chan struct{})
	ts.started = make(chan struct{})
	e := newTestEngine(t, newStubSource(bodyLines(130)), ts)

	const readers = 8
	results := make([]*Result, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Result(context.Background())
			if err != nil {
				t.Errorf("Result 返回错误: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	<-ts.started
	close(ts.gate)
	wg.Wait()

	if ts.runs.Load() != 1 {
		t.Fatalf("并发读取应共享一次计算，实际 %d 次", ts.runs.Load())
	}
	for i := 1; i < readers; i++ {
		if results[i] != results[0] {
			t.Fatalf("读者 %d 得到了不同的结果", i)
		}
	}
}

func TestEngineDiscardsSupersededResult(t *testing.T) {
	ts := newCountingTypesetter()
	ts.gate = make(chan struct{})
	ts.started = make(chan struct{})
	e := newTestEngine(t, newStubSource(bodyLines(130)), ts)

	done := make(chan *Result, 1)
	go func() {
		res, err := e.Result(context.Background())
		if err != nil {
			t.Errorf("Result 返回错误: %v", err)
		}
		done <- res
	}()
	<-ts.started
	e.Invalidate()
	close(ts.gate)

	res := <-done
	if res == nil || res.Generation != 2 {
		t.Fatalf("应返回新一代的结果: %+v", res)
	}
	if ts.runs.Load() != 2 {
		t.Fatalf("过期计算后应重新计算一次，实际 %d 次", ts.runs.Load())
	}
	if cur := e.Current(); cur != res {
		t.Fatalf("发布的结果应为新一代")
	}
}

func TestEngineFailureKeepsPreviousResult(t *testing.T) {
	ts := newCountingTypesetter()
	e := newTestEngine(t, newStubSource(bodyLines(10)), ts)
	ctx := context.Background()
	prev, err := e.Result(ctx)
	if err != nil {
		t.Fatalf("Result 返回错误: %v", err)
	}

	ts.fail.Store(true)
	e.Invalidate()
	if _, err := e.Result(ctx); err == nil {
		t.Fatalf("排版失败应返回错误")
	}
	if e.Current() != prev || !e.Stale() || e.State() != Dirty {
		t.Fatalf("失败后应保留上一次结果并保持 dirty")
	}

	ts.fail.Store(false)
	next, err := e.Result(ctx)
	if err != nil || next == prev {
		t.Fatalf("恢复后应重新计算: %v", err)
	}
}

func TestEngineSubscriptionInvalidates(t *testing.T) {
	src := newStubSource(bodyLines(10))
	e := newTestEngine(t, src, newCountingTypesetter())
	ctx := context.Background()
	if n, err := e.PageCount(ctx); err != nil || n != 1 {
		t.Fatalf("期望 1 页: %d %v", n, err)
	}

	src.set(bodyLines(130))
	if !e.Stale() || e.State() != Dirty {
		t.Fatalf("文档变化后结果应过期")
	}
	if n, err := e.PageCount(ctx); err != nil || n != 3 {
		t.Fatalf("期望 3 页: %d %v", n, err)
	}

	e.Close()
	gen := e.Generation()
	src.set(bodyLines(1))
	if e.Generation() != gen {
		t.Fatalf("取消订阅后不应再失效")
	}
}

func TestEngineSetPageSetup(t *testing.T) {
	e := newTestEngine(t, newStubSource(bodyLines(130)), newCountingTypesetter())
	ctx := context.Background()
	if n, _ := e.PageCount(ctx); n != 3 {
		t.Fatalf("纵向应为 3 页，实际 %d", n)
	}
	ps := letterSetup()
	ps.Orientation = Landscape
	e.SetPageSetup(ps)
	if e.PageSetup().Orientation != Landscape {
		t.Fatalf("页面设置未更新")
	}
	// 横向内容区高 468pt，每页 46 行
	if n, _ := e.PageCount(ctx); n != 3 {
		t.Fatalf("横向应为 3 页，实际 %d", n)
	}
	rec, ok, err := e.PageRecord(ctx, 0)
	if err != nil || !ok || rec.Range.Len() != 2*46 {
		t.Fatalf("横向首页错误: %+v %v %v", rec, ok, err)
	}
}

func TestEngineLookups(t *testing.T) {
	e := newTestEngine(t, newStubSource(bodyLines(130)), newCountingTypesetter())
	ctx := context.Background()

	cases := []struct {
		char int
		page int
		ok   bool
	}{
		{0, 0, true},
		{127, 0, true},
		{128, 1, true},
		{259, 2, true},
		{260, 2, true},
		{261, 0, false},
		{-1, 0, false},
	}
	for _, c := range cases {
		p, ok, err := e.PageIndexForCharacter(ctx, c.char)
		if err != nil || ok != c.ok || p != c.page {
			t.Fatalf("字符 %d: 期望 (%d,%v)，实际 (%d,%v,%v)", c.char, c.page, c.ok, p, ok, err)
		}
	}
	r, ok, err := e.CharacterRangeForPage(ctx, 1)
	if err != nil || !ok || r != (Range{128, 256}) {
		t.Fatalf("第 2 页区间错误: %+v %v %v", r, ok, err)
	}
	if _, ok, _ := e.CharacterRangeForPage(ctx, 3); ok {
		t.Fatalf("越界页不应存在")
	}
}

func TestEngineRefreshAndCancel(t *testing.T) {
	e := newTestEngine(t, newStubSource(bodyLines(10)), newCountingTypesetter())
	<-e.Refresh()
	if e.Current() == nil || e.Stale() {
		t.Fatalf("后台刷新后应有最新结果")
	}

	e.Invalidate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Result(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回 context.Canceled，实际 %v", err)
	}
}
