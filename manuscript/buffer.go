// Package manuscript 提供分页引擎使用的参考文档模型：可变的样式文本缓冲区，
// 每次读取都得到不可变快照，内容变化时通知订阅者。
package manuscript

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/ByLCY/quire/layout"
)

// ErrOutOfRange 表示位置或区间越界。
var ErrOutOfRange = errors.New("manuscript: 位置越界")

// Footnote 是挂在正文某个字符上的脚注。
type Footnote struct {
	Anchor int
	Text   string
	Style  layout.Style
}

// Buffer 是带样式的正文缓冲区，可被多个 goroutine 安全访问。
type Buffer struct {
	mu      sync.Mutex
	title   string
	meta    map[string]string
	runes   []rune
	styles  []layout.Style
	notes   []Footnote
	version uint64

	snap *layout.Snapshot

	subs    map[int]func()
	nextSub int
}

// New 创建空文档。
func New(title string) *Buffer {
	return &Buffer{
		title: title,
		meta:  map[string]string{},
		subs:  map[int]func(){},
	}
}

// Title 返回文档标题。
func (b *Buffer) Title() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.title
}

// SetMeta 设置文档元数据，供页眉/页脚模板引用。元数据不影响分页，不会触发通知。
func (b *Buffer) SetMeta(key, value string) {
	b.mu.Lock()
	b.meta[key] = value
	b.mu.Unlock()
}

// Meta 返回元数据的副本。
func (b *Buffer) Meta() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.meta)
}

// Len 返回正文字符（rune）数。
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.runes)
}

// Version 在每次内容变化后递增。
func (b *Buffer) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// String 返回正文纯文本。
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.runes)
}

// Append 在文末追加一段文本。
func (b *Buffer) Append(text string, st layout.Style) {
	ins := []rune(text)
	if len(ins) == 0 {
		return
	}
	b.mu.Lock()
	fns := b.insertLocked(len(b.runes), ins, st)
	b.mu.Unlock()
	notify(fns)
}

// Insert 在 pos 处插入文本，位于 pos 及之后的脚注锚点随之后移。
func (b *Buffer) Insert(pos int, text string, st layout.Style) error {
	ins := []rune(text)
	if len(ins) == 0 {
		return nil
	}
	b.mu.Lock()
	if pos < 0 || pos > len(b.runes) {
		n := len(b.runes)
		b.mu.Unlock()
		return fmt.Errorf("插入位置 %d 超出 [0, %d]: %w", pos, n, ErrOutOfRange)
	}
	fns := b.insertLocked(pos, ins, st)
	b.mu.Unlock()
	notify(fns)
	return nil
}

func (b *Buffer) insertLocked(pos int, ins []rune, st layout.Style) []func() {
	styles := make([]layout.Style, len(ins))
	for i := range styles {
		styles[i] = st
	}
	b.runes = append(b.runes[:pos], append(ins, b.runes[pos:]...)...)
	b.styles = append(b.styles[:pos], append(styles, b.styles[pos:]...)...)
	for i := range b.notes {
		if b.notes[i].Anchor >= pos {
			b.notes[i].Anchor += len(ins)
		}
	}
	return b.changedLocked()
}

// Delete 删除区间 r 内的字符；锚点落在 r 内的脚注一并删除，其后的锚点前移。
func (b *Buffer) Delete(r layout.Range) error {
	b.mu.Lock()
	if r.Start < 0 || r.End > len(b.runes) || r.End < r.Start {
		n := len(b.runes)
		b.mu.Unlock()
		return fmt.Errorf("删除区间 %v 超出 [0, %d): %w", r, n, ErrOutOfRange)
	}
	if r.Empty() {
		b.mu.Unlock()
		return nil
	}
	b.runes = append(b.runes[:r.Start], b.runes[r.End:]...)
	b.styles = append(b.styles[:r.Start], b.styles[r.End:]...)
	kept := b.notes[:0]
	for _, fn := range b.notes {
		switch {
		case r.Contains(fn.Anchor):
			continue
		case fn.Anchor >= r.End:
			fn.Anchor -= r.Len()
		}
		kept = append(kept, fn)
	}
	b.notes = kept
	fns := b.changedLocked()
	b.mu.Unlock()
	notify(fns)
	return nil
}

// SetStyle 把区间 r 内的字符改为样式 st。
func (b *Buffer) SetStyle(r layout.Range, st layout.Style) error {
	b.mu.Lock()
	if r.Start < 0 || r.End > len(b.runes) || r.End < r.Start {
		n := len(b.runes)
		b.mu.Unlock()
		return fmt.Errorf("样式区间 %v 超出 [0, %d): %w", r, n, ErrOutOfRange)
	}
	for i := r.Start; i < r.End; i++ {
		b.styles[i] = st
	}
	fns := b.changedLocked()
	b.mu.Unlock()
	notify(fns)
	return nil
}

// AddFootnote 在字符 anchor 上挂一条脚注。
func (b *Buffer) AddFootnote(anchor int, text string, st layout.Style) error {
	b.mu.Lock()
	if anchor < 0 || anchor >= len(b.runes) {
		n := len(b.runes)
		b.mu.Unlock()
		return fmt.Errorf("脚注锚点 %d 超出 [0, %d): %w", anchor, n, ErrOutOfRange)
	}
	b.notes = append(b.notes, Footnote{Anchor: anchor, Text: text, Style: st})
	sort.SliceStable(b.notes, func(i, j int) bool { return b.notes[i].Anchor < b.notes[j].Anchor })
	fns := b.changedLocked()
	b.mu.Unlock()
	notify(fns)
	return nil
}

// Footnotes 返回按锚点排序的脚注副本。
func (b *Buffer) Footnotes() []Footnote {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Footnote(nil), b.notes...)
}

// Snapshot 返回当前内容的不可变快照；内容未变化时复用上一次的快照。
func (b *Buffer) Snapshot() layout.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snap != nil {
		return *b.snap
	}
	text := &frozenText{
		runes:  append([]rune(nil), b.runes...),
		styles: append([]layout.Style(nil), b.styles...),
	}
	var notes []layout.FootnoteRef
	for _, fn := range b.notes {
		notes = append(notes, layout.FootnoteRef{Anchor: fn.Anchor, Content: layout.NewPlainText(fn.Text, fn.Style)})
	}
	b.snap = &layout.Snapshot{Text: text, Footnotes: notes, Version: b.version}
	return *b.snap
}

// Subscribe 注册内容变化回调，回调在锁外同步执行。
func (b *Buffer) Subscribe(fn func()) (cancel func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *Buffer) changedLocked() []func() {
	b.version++
	b.snap = nil
	fns := make([]func(), 0, len(b.subs))
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, b.subs[id])
	}
	return fns
}

func notify(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// frozenText 是快照中的文本副本，创建后不再修改。
type frozenText struct {
	runes  []rune
	styles []layout.Style
}

func (f *frozenText) Len() int { return len(f.runes) }

func (f *frozenText) RuneAt(i int) (rune, layout.Style) {
	if i < 0 || i >= len(f.runes) {
		return 0, layout.Style{}
	}
	return f.runes[i], f.styles[i]
}
