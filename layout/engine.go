package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// State 表示某个文档的布局状态。
type State int

const (
	Dirty State = iota
	Computing
	Clean
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Computing:
		return "computing"
	default:
		return "dirty"
	}
}

// errSuperseded 表示计算期间文档或页面设置已变更，结果被丢弃。
var errSuperseded = errors.New("layout: 计算结果已过期")

// Engine 是每个打开文档一个的分页引擎。
// 文本或页面设置变化时代数加一并进入 Dirty；下一次读取触发计算，同一代只会计算一次。
type Engine struct {
	source Source
	ts     Typesetter
	opts   Options
	log    *slog.Logger

	mu         sync.Mutex
	setup      PageSetup
	generation uint64
	state      State
	cancelSub  func()

	current atomic.Pointer[Result]
	group   singleflight.Group
}

// NewEngine 创建分页引擎；若 src 实现了 Subscriber，文档变化会自动使缓存失效。
func NewEngine(src Source, ps PageSetup, ts Typesetter, opts Options) (*Engine, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	if ts == nil {
		return nil, ErrNoTypesetter
	}
	opts = opts.normalized()
	e := &Engine{
		source:     src,
		ts:         ts,
		opts:       opts,
		log:        opts.Logger,
		setup:      ps,
		generation: 1,
		state:      Dirty,
	}
	if sub, ok := src.(Subscriber); ok {
		e.cancelSub = sub.Subscribe(e.Invalidate)
	}
	return e, nil
}

// Close 取消对文档变化的订阅。
func (e *Engine) Close() {
	e.mu.Lock()
	cancel := e.cancelSub
	e.cancelSub = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Invalidate 丢弃缓存的布局结果；正在进行的计算完成后不会被发布。
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.generation++
	e.state = Dirty
	e.mu.Unlock()
}

// SetPageSetup 替换页面设置并使布局失效。
func (e *Engine) SetPageSetup(ps PageSetup) {
	e.mu.Lock()
	e.setup = ps
	e.generation++
	e.state = Dirty
	e.mu.Unlock()
}

// PageSetup 返回当前页面设置。
func (e *Engine) PageSetup() PageSetup {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setup
}

// Generation 返回当前代数。
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current 不阻塞地返回最近一次发布的结果，可能已过期，也可能为 nil。
func (e *Engine) Current() *Result { return e.current.Load() }

// Stale 表示 Current 返回的结果不对应当前代。
func (e *Engine) Stale() bool {
	res := e.current.Load()
	return res == nil || res.Generation != e.Generation()
}

// Result 返回当前代的布局结果，必要时同步计算。
// 并发调用者共享同一次计算；若计算期间再次失效，则丢弃旧结果并针对新一代重试。
func (e *Engine) Result(ctx context.Context) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.mu.Lock()
		gen := e.generation
		if res := e.current.Load(); res != nil && res.Generation == gen && e.state == Clean {
			e.mu.Unlock()
			return res, nil
		}
		e.mu.Unlock()

		ch := e.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
			return e.compute(gen)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-ch:
			if r.Err != nil {
				if errors.Is(r.Err, errSuperseded) {
					continue
				}
				return nil, r.Err
			}
			return r.Val.(*Result), nil
		}
	}
}

// Refresh 在后台计算当前代的布局，返回的 channel 在计算结束时关闭。
func (e *Engine) Refresh() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := e.Result(context.Background()); err != nil {
			e.log.Warn("layout: 后台分页失败，保留上一次结果", "error", err)
		}
	}()
	return done
}

func (e *Engine) compute(gen uint64) (*Result, error) {
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil, errSuperseded
	}
	if res := e.current.Load(); res != nil && res.Generation == gen && e.state == Clean {
		e.mu.Unlock()
		return res, nil
	}
	e.state = Computing
	setup := e.setup
	e.mu.Unlock()

	snap := e.source.Snapshot()
	res, err := Paginate(snap, setup, e.ts, e.opts)
	if err == nil {
		if verr := res.Validate(); verr != nil {
			err = fmt.Errorf("分页结果校验失败: %w", verr)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		e.log.Debug("layout: 丢弃过期的分页结果", "generation", gen, "current", e.generation)
		return nil, errSuperseded
	}
	if err != nil {
		e.state = Dirty
		return nil, err
	}
	res.Generation = gen
	e.current.Store(res)
	e.state = Clean
	e.log.Debug("layout: 分页完成", "generation", gen, "pages", len(res.Pages))
	return res, nil
}

// PageCount 返回当前代的总页数。
func (e *Engine) PageCount(ctx context.Context) (int, error) {
	res, err := e.Result(ctx)
	if err != nil {
		return 0, err
	}
	return res.PageCount(), nil
}

// PageRecord 返回当前代的第 i 页。
func (e *Engine) PageRecord(ctx context.Context, i int) (PageRecord, bool, error) {
	res, err := e.Result(ctx)
	if err != nil {
		return PageRecord{}, false, err
	}
	rec, ok := res.Page(i)
	return rec, ok, nil
}

// PageIndexForCharacter 用于光标同步：返回字符 i 所在的页。
func (e *Engine) PageIndexForCharacter(ctx context.Context, i int) (int, bool, error) {
	res, err := e.Result(ctx)
	if err != nil {
		return 0, false, err
	}
	p, ok := res.PageIndexForCharacter(i)
	return p, ok, nil
}

// CharacterRangeForPage 返回第 p 页的字符区间。
func (e *Engine) CharacterRangeForPage(ctx context.Context, p int) (Range, bool, error) {
	res, err := e.Result(ctx)
	if err != nil {
		return Range{}, false, err
	}
	r, ok := res.CharacterRangeForPage(p)
	return r, ok, nil
}
