package layout

import (
	"fmt"
	"sort"
)

// PageCount 返回总页数。
func (r *Result) PageCount() int {
	if r == nil {
		return 0
	}
	return len(r.Pages)
}

// DocumentLength 返回参与分页的字符总数。
func (r *Result) DocumentLength() int {
	if r == nil || len(r.Pages) == 0 {
		return 0
	}
	return r.Pages[len(r.Pages)-1].Range.End
}

// Page 返回第 i 页（从 0 开始）。
func (r *Result) Page(i int) (PageRecord, bool) {
	if r == nil || i < 0 || i >= len(r.Pages) {
		return PageRecord{}, false
	}
	return r.Pages[i], true
}

// PageIndexForCharacter 二分查找字符 i 所在的页。i 等于文档长度时（光标位于末尾）返回最后一页。
func (r *Result) PageIndexForCharacter(i int) (int, bool) {
	if r == nil || len(r.Pages) == 0 {
		return 0, false
	}
	n := r.DocumentLength()
	if i < 0 || i > n {
		return 0, false
	}
	if i == n {
		return len(r.Pages) - 1, true
	}
	p := sort.Search(len(r.Pages), func(k int) bool { return r.Pages[k].Range.End > i })
	if p >= len(r.Pages) {
		return 0, false
	}
	return p, true
}

// CharacterRangeForPage 返回第 p 页的字符区间。
func (r *Result) CharacterRangeForPage(p int) (Range, bool) {
	rec, ok := r.Page(p)
	if !ok {
		return Range{}, false
	}
	return rec.Range, true
}

// Validate 检查分页结果的不变式：页号连续、区间首尾相接覆盖 [0, n)、脚注挂在其锚点所在页。
func (r *Result) Validate() error {
	if r == nil || len(r.Pages) == 0 {
		return fmt.Errorf("layout: 分页结果至少需要一页")
	}
	next := 0
	for i, pg := range r.Pages {
		if pg.Index != i {
			return fmt.Errorf("layout: 第 %d 页的页号为 %d", i, pg.Index)
		}
		if pg.Range.Start != next {
			return fmt.Errorf("layout: 第 %d 页起始于 %d，期望 %d", i, pg.Range.Start, next)
		}
		if pg.Range.End < pg.Range.Start {
			return fmt.Errorf("layout: 第 %d 页区间倒退 %v", i, pg.Range)
		}
		if pg.Range.Empty() && len(r.Pages) > 1 {
			return fmt.Errorf("layout: 第 %d 页为空", i)
		}
		for _, fn := range pg.Footnotes {
			if !pg.Range.Contains(fn.Anchor) {
				return fmt.Errorf("layout: 锚点 %d 的脚注不在所在页 %d 的区间 %v 内", fn.Anchor, i, pg.Range)
			}
		}
		next = pg.Range.End
	}
	if r.Text != nil && next != r.Text.Len() {
		return fmt.Errorf("layout: 分页覆盖到 %d，文档长度为 %d", next, r.Text.Len())
	}
	return nil
}
