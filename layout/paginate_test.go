package layout

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
)

// 10pt 行高、每行一个字符加换行：n 行正好占 n*10pt，Letter 内容区每页可放 64 行。
func bodyLines(n int) *PlainText {
	return NewPlainText(strings.Repeat("x\n", n), Style{})
}

// noteLines 构造高度为 n*10pt 的脚注。
func noteLines(n int) *PlainText {
	return NewPlainText(strings.TrimSuffix(strings.Repeat("f\n", n), "\n"), Style{})
}

// lineAnchor 返回第 line 行首字符的下标。
func lineAnchor(line int) int { return line * 2 }

func paginateLetter(t *testing.T, snap Snapshot) *Result {
	t.Helper()
	res, err := Paginate(snap, letterSetup(), NewTypesetter(MonospaceMetrics{CharWidth: 6, Line: 10}), DefaultOptions())
	if err != nil {
		t.Fatalf("Paginate 返回错误: %v", err)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("分页结果不满足不变式: %v", err)
	}
	return res
}

func pageLineCounts(res *Result) []int {
	out := make([]int, len(res.Pages))
	for i, pg := range res.Pages {
		out[i] = pg.Range.Len() / 2
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPaginateEmptyDocument(t *testing.T) {
	for _, text := range []TextSpan{nil, NewPlainText("", Style{})} {
		res := paginateLetter(t, Snapshot{Text: text, Footnotes: []FootnoteRef{{Anchor: 3, Content: noteLines(1)}}})
		if res.PageCount() != 1 {
			t.Fatalf("空文档应得到 1 页，实际 %d", res.PageCount())
		}
		pg := res.Pages[0]
		if pg.Range != (Range{}) || pg.Used != res.Geometry.Content || len(pg.Footnotes) != 0 {
			t.Fatalf("空白页错误: %+v", pg)
		}
	}
}

func TestPaginateBodyWithoutFootnotes(t *testing.T) {
	res := paginateLetter(t, Snapshot{Text: bodyLines(130)})
	if got := pageLineCounts(res); !equalInts(got, []int{64, 64, 2}) {
		t.Fatalf("每页行数错误: %v", got)
	}
	if res.TotalContentHeight != 1300 {
		t.Fatalf("正文总高度应为 1300，实际 %v", res.TotalContentHeight)
	}
	for _, pg := range res.Pages {
		if pg.Iterations != 1 || !pg.Converged {
			t.Fatalf("无脚注页面应一轮收敛: %+v", pg)
		}
	}
}

// 130 行正文在第 2 页挂一条 100pt 的脚注：第 2 页缩短，但剩余正文仍能在第 3 页放下。
func TestPaginateFootnoteOnSecondPage(t *testing.T) {
	res := paginateLetter(t, Snapshot{
		Text:      bodyLines(130),
		Footnotes: []FootnoteRef{{Anchor: lineAnchor(70), Content: noteLines(10)}},
	})
	if got := pageLineCounts(res); !equalInts(got, []int{64, 54, 12}) {
		t.Fatalf("每页行数错误: %v", got)
	}
	pg := res.Pages[1]
	if len(pg.Footnotes) != 1 || !pg.Converged {
		t.Fatalf("第 2 页应收敛并包含脚注: %+v", pg)
	}
	if pg.Footnotes[0].Rect != (Rect{X: 72, Y: 620, W: 468, H: 100}) {
		t.Fatalf("脚注矩形错误: %+v", pg.Footnotes[0].Rect)
	}
	if pg.Used.H+pg.FootnoteBand.H > res.Geometry.Content.H {
		t.Fatalf("正文与脚注区超出内容区: used=%v band=%v", pg.Used.H, pg.FootnoteBand.H)
	}
}

// 190 行正文原本 3 页；第 2 页的脚注把 10 行挤到后面，第 3 页装不下，多出第 4 页。
func TestPaginateFootnoteCascadesToExtraPage(t *testing.T) {
	plain := paginateLetter(t, Snapshot{Text: bodyLines(190)})
	if plain.PageCount() != 3 {
		t.Fatalf("无脚注时应为 3 页，实际 %d", plain.PageCount())
	}
	res := paginateLetter(t, Snapshot{
		Text:      bodyLines(190),
		Footnotes: []FootnoteRef{{Anchor: lineAnchor(70), Content: noteLines(10)}},
	})
	if got := pageLineCounts(res); !equalInts(got, []int{64, 54, 64, 8}) {
		t.Fatalf("每页行数错误: %v", got)
	}
	if p, _ := res.PageIndexForCharacter(lineAnchor(70)); p != 1 {
		t.Fatalf("锚点应位于第 2 页，实际 %d", p+1)
	}
}

func TestPaginateStacksFootnotesInAnchorOrder(t *testing.T) {
	res := paginateLetter(t, Snapshot{
		Text: bodyLines(5),
		Footnotes: []FootnoteRef{
			{Anchor: lineAnchor(4), Content: noteLines(3)},
			{Anchor: lineAnchor(0), Content: noteLines(2)},
		},
	})
	pg := res.Pages[0]
	if len(pg.Footnotes) != 2 {
		t.Fatalf("应有 2 条脚注: %+v", pg)
	}
	first, second := pg.Footnotes[0], pg.Footnotes[1]
	if first.Anchor >= second.Anchor || first.Anchor != 0 || second.Anchor != 8 {
		t.Fatalf("脚注应按锚点升序排列: %+v", pg.Footnotes)
	}
	if first.Rect.Y >= second.Rect.Y || first.Rect.Bottom() != second.Rect.Y {
		t.Fatalf("锚点靠前的脚注应堆叠在上方: %+v %+v", first.Rect, second.Rect)
	}
	if second.Rect.Bottom() != 720 || second.Rect.Y != 690 || first.Rect.Y != 670 {
		t.Fatalf("脚注应自下而上贴底堆叠: %+v %+v", first.Rect, second.Rect)
	}
	if pg.FootnoteBand != (Rect{X: 72, Y: 670, W: 468, H: 50}) {
		t.Fatalf("脚注区错误: %+v", pg.FootnoteBand)
	}
	if pg.Used.H != 50 {
		t.Fatalf("正文占用高度错误: %v", pg.Used.H)
	}
}

func TestPaginateFootnoteSeparator(t *testing.T) {
	opts := DefaultOptions()
	opts.FootnoteSeparator = 8
	res, err := Paginate(Snapshot{
		Text:      bodyLines(64),
		Footnotes: []FootnoteRef{{Anchor: 0, Content: noteLines(1)}},
	}, letterSetup(), NewTypesetter(MonospaceMetrics{CharWidth: 6, Line: 10}), opts)
	if err != nil {
		t.Fatalf("Paginate 返回错误: %v", err)
	}
	pg := res.Pages[0]
	if pg.FootnoteBand.H != 18 || pg.Range.Len() != 2*63 {
		t.Fatalf("分隔间距应计入脚注区: band=%+v range=%+v", pg.FootnoteBand, pg.Range)
	}
}

// 锚点恰好在页末一行：放入脚注会把该行挤走，挤走后又不再需要脚注，循环振荡。
// 结果必须终止，且脚注随锚点一起移到下一页。
func TestPaginateOscillationFallsBack(t *testing.T) {
	res := paginateLetter(t, Snapshot{
		Text:      bodyLines(100),
		Footnotes: []FootnoteRef{{Anchor: lineAnchor(63), Content: noteLines(1)}},
	})
	if got := pageLineCounts(res); !equalInts(got, []int{63, 37}) {
		t.Fatalf("每页行数错误: %v", got)
	}
	first := res.Pages[0]
	if first.Converged || first.Iterations != DefaultOptions().MaxFootnoteIterations || len(first.Footnotes) != 0 {
		t.Fatalf("第 1 页应达到迭代上限且不含脚注: %+v", first)
	}
	second := res.Pages[1]
	if len(second.Footnotes) != 1 || second.Footnotes[0].Anchor != lineAnchor(63) {
		t.Fatalf("脚注应位于第 2 页: %+v", second)
	}
}

func TestPaginateTooManyFootnotesTerminates(t *testing.T) {
	var notes []FootnoteRef
	for i := 0; i < 50; i++ {
		notes = append(notes, FootnoteRef{Anchor: lineAnchor(i), Content: noteLines(10)})
	}
	res := paginateLetter(t, Snapshot{Text: bodyLines(80), Footnotes: notes})
	placed := 0
	for _, pg := range res.Pages {
		if pg.Iterations > DefaultOptions().MaxFootnoteIterations {
			t.Fatalf("第 %d 页迭代次数超出上限: %d", pg.Index, pg.Iterations)
		}
		placed += len(pg.Footnotes)
	}
	if placed != len(notes) {
		t.Fatalf("每条脚注应恰好放置一次: %d/%d", placed, len(notes))
	}
	if got := res.Pages[0].Range.Len() / 2; got != 4 {
		t.Fatalf("首页应截断到能容纳的脚注之前，实际 %d 行", got)
	}
}

// 两条脚注合计超过内容区，循环不收敛；截断必须落在第二条脚注锚点所在行的行首，而不是行中。
func TestPaginateTooManyFootnotesCutsAtLineStart(t *testing.T) {
	const line = "abcdef\n"
	at := func(row, col int) int { return row*len(line) + col }
	res := paginateLetter(t, Snapshot{
		Text: NewPlainText(strings.Repeat(line, 60), Style{}),
		Footnotes: []FootnoteRef{
			{Anchor: at(0, 3), Content: noteLines(30)},
			{Anchor: at(20, 3), Content: noteLines(40)},
		},
	})
	first := res.Pages[0]
	if first.Converged {
		t.Fatalf("首页不应收敛: %+v", first)
	}
	if first.Range != (Range{0, at(20, 0)}) {
		t.Fatalf("首页应截断到第 21 行行首: %+v", first.Range)
	}
	if len(first.Footnotes) != 1 || first.Footnotes[0].Anchor != at(0, 3) {
		t.Fatalf("首页只应包含第一条脚注: %+v", first.Footnotes)
	}
	second := res.Pages[1]
	if second.Range.Start != at(20, 0) || len(second.Footnotes) == 0 || second.Footnotes[0].Anchor != at(20, 3) {
		t.Fatalf("第二条脚注应随整行移到第 2 页: %+v", second)
	}
}

// 单条脚注比整页还高：照常前进，脚注溢出作为近似结果接受。
func TestPaginateOversizedFootnoteProgresses(t *testing.T) {
	res := paginateLetter(t, Snapshot{
		Text:      bodyLines(10),
		Footnotes: []FootnoteRef{{Anchor: 0, Content: noteLines(100)}},
	})
	if res.PageCount() != 1 || len(res.Pages[0].Footnotes) != 1 {
		t.Fatalf("应得到包含脚注的 1 页: %+v", res.Pages)
	}
}

func TestPaginateDegenerateGeometry(t *testing.T) {
	ps := letterSetup()
	ps.Margin.Top, ps.Margin.Bottom = 500, 500
	res, err := Paginate(Snapshot{Text: bodyLines(30)}, ps, NewTypesetter(MonospaceMetrics{CharWidth: 6, Line: 10}), DefaultOptions())
	if err != nil {
		t.Fatalf("Paginate 返回错误: %v", err)
	}
	if res.PageCount() != 1 || res.Pages[0].Range != (Range{0, 60}) {
		t.Fatalf("零面积内容区应得到覆盖全文的单页: %+v", res.Pages)
	}
	if err := res.Validate(); err != nil {
		t.Fatalf("分页结果不满足不变式: %v", err)
	}
}

type failingTypesetter struct{ err error }

func (f failingTypesetter) Measure(TextSpan, int, Rect) (Range, Rect, error) {
	return Range{}, Rect{}, f.err
}

func (f failingTypesetter) LayoutLines(TextSpan, Range, float64) ([]TextLine, error) {
	return nil, f.err
}

func TestPaginatePropagatesTypesetterError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Paginate(Snapshot{Text: bodyLines(3)}, letterSetup(), failingTypesetter{err: boom}, DefaultOptions())
	if !errors.Is(err, boom) {
		t.Fatalf("应包装排版错误，实际 %v", err)
	}
	if _, err := Paginate(Snapshot{}, letterSetup(), nil, DefaultOptions()); !errors.Is(err, ErrNoTypesetter) {
		t.Fatalf("缺少 Typesetter 应报错，实际 %v", err)
	}
}

func TestPaginateRandomDocuments(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	words := []string{"a", "lorem", "ipsum", "dolor", "sit", "amet,", "consectetur", "adipiscing", "elit."}
	ts := NewTypesetter(MonospaceMetrics{CharWidth: 6, Line: 12})
	for round := 0; round < 40; round++ {
		var sb strings.Builder
		for w := rng.IntN(2000); w > 0; w-- {
			sb.WriteString(words[rng.IntN(len(words))])
			if rng.IntN(12) == 0 {
				sb.WriteString("\n")
			} else {
				sb.WriteString(" ")
			}
		}
		text := NewPlainText(sb.String(), Style{})
		var notes []FootnoteRef
		if text.Len() > 0 {
			for k := rng.IntN(15); k > 0; k-- {
				notes = append(notes, FootnoteRef{Anchor: rng.IntN(text.Len()), Content: noteLines(1 + rng.IntN(8))})
			}
		}
		ps := PageSetup{
			PaperWidth:  300 + rng.Float64()*400,
			PaperHeight: 300 + rng.Float64()*600,
			Orientation: Orientation(rng.IntN(2)),
			Margin:      Margin{Top: 36, Right: 36, Bottom: 36, Left: 36},
			HasHeader:   rng.IntN(2) == 0,
			HeaderDepth: 20,
		}
		res, err := Paginate(Snapshot{Text: text, Footnotes: notes}, ps, ts, DefaultOptions())
		if err != nil {
			t.Fatalf("round %d: Paginate 返回错误: %v", round, err)
		}
		if err := res.Validate(); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		last := 0
		for i := 0; i <= text.Len(); i++ {
			p, ok := res.PageIndexForCharacter(i)
			if !ok || p < last {
				t.Fatalf("round %d: 字符 %d 的页号不单调: %d < %d", round, i, p, last)
			}
			last = p
		}
		content := res.Geometry.Content
		for _, pg := range res.Pages {
			if pg.Converged && pg.Used.H+pg.FootnoteBand.H > content.H+0.01 {
				t.Fatalf("round %d: 第 %d 页正文与脚注重叠", round, pg.Index)
			}
			for _, fn := range pg.Footnotes {
				if p, _ := res.PageIndexForCharacter(fn.Anchor); p != pg.Index {
					t.Fatalf("round %d: 脚注 %d 与锚点不在同一页", round, fn.Anchor)
				}
			}
		}
	}
}
