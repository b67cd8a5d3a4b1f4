package binding

import "testing"

func TestInterpolate(t *testing.T) {
	data := map[string]any{
		"title":   "Quire",
		"authors": []any{"Ada", "Grace"},
		"meta":    map[string]string{"edition": "2nd"},
		"page":    4,
	}
	cases := []struct {
		in, want string
	}{
		{"${title}", "Quire"},
		{"by ${authors[1]}", "by Grace"},
		{"${meta.edition} edition", "2nd edition"},
		{"${page|roman}", "iv"},
		{"${page|ROMAN}", "IV"},
		{"${title|upper}", "QUIRE"},
		{"${missing}", "${missing}"},
		{"${title|nope}", "${title|nope}"},
		{"${title|roman}", "${title|roman}"},
	}
	for _, c := range cases {
		if got := Interpolate(c.in, data); got != c.want {
			t.Fatalf("Interpolate(%q) = %q，期望 %q", c.in, got, c.want)
		}
	}
	if got := Interpolate("${title}", nil); got != "${title}" {
		t.Fatalf("data 为空时应原样返回，实际 %q", got)
	}
}

func TestCaptionsExpand(t *testing.T) {
	c := Captions{Title: "Quire", Meta: map[string]string{"author": "Ada"}}
	if got := c.Expand("${title} · ${page} / ${pages}", 2, 12); got != "Quire · 3 / 12" {
		t.Fatalf("页码展开错误: %q", got)
	}
	if got := c.Expand("${meta.author}, p. ${page|roman}", 13, 20); got != "Ada, p. xiv" {
		t.Fatalf("元数据展开错误: %q", got)
	}
	if got := c.Expand("plain", 0, 1); got != "plain" {
		t.Fatalf("无占位符时应原样返回: %q", got)
	}
}

func TestRoman(t *testing.T) {
	cases := map[int]string{1: "I", 4: "IV", 9: "IX", 14: "XIV", 40: "XL", 90: "XC", 400: "CD", 1994: "MCMXCIV", 0: "0"}
	for n, want := range cases {
		if got := Roman(n); got != want {
			t.Fatalf("Roman(%d) = %s，期望 %s", n, got, want)
		}
	}
}
