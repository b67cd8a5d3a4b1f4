package fonts

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-fonts/latin-modern/lmmono10italic"
	"github.com/go-fonts/latin-modern/lmmono10regular"
	"github.com/go-fonts/latin-modern/lmroman10bold"
	"github.com/go-fonts/latin-modern/lmroman10bolditalic"
	"github.com/go-fonts/latin-modern/lmroman10italic"
	"github.com/go-fonts/latin-modern/lmroman10regular"
	"github.com/go-fonts/latin-modern/lmsans10bold"
	"github.com/go-fonts/latin-modern/lmsans10oblique"
	"github.com/go-fonts/latin-modern/lmsans10regular"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
)

// Fallback 是找不到字体时使用的内置字体名。
const Fallback = "go-regular"

var builtin = map[string][]byte{
	"lmroman10-regular":    lmroman10regular.TTF,
	"lmroman10-bold":       lmroman10bold.TTF,
	"lmroman10-italic":     lmroman10italic.TTF,
	"lmroman10-bolditalic": lmroman10bolditalic.TTF,
	"lmsans10-regular":     lmsans10regular.TTF,
	"lmsans10-bold":        lmsans10bold.TTF,
	"lmsans10-oblique":     lmsans10oblique.TTF,
	"lmmono10-regular":     lmmono10regular.TTF,
	"lmmono10-italic":      lmmono10italic.TTF,
	"go-regular":           goregular.TTF,
	"go-bold":              gobold.TTF,
	"go-italic":            goitalic.TTF,
	"go-bolditalic":        gobolditalic.TTF,
}

// 字体族到各字重/字形的映射，键为 regular/bold/italic/bolditalic。
var families = map[string]map[string]string{
	"serif": {"regular": "lmroman10-regular", "bold": "lmroman10-bold", "italic": "lmroman10-italic", "bolditalic": "lmroman10-bolditalic"},
	"sans":  {"regular": "lmsans10-regular", "bold": "lmsans10-bold", "italic": "lmsans10-oblique", "bolditalic": "lmsans10-bold"},
	"mono":  {"regular": "lmmono10-regular", "bold": "lmmono10-regular", "italic": "lmmono10-italic", "bolditalic": "lmmono10-italic"},
	"go":    {"regular": "go-regular", "bold": "go-bold", "italic": "go-italic", "bolditalic": "go-bolditalic"},
}

// Load 返回内置字体的字节数据，name 可写为 "embed:lmroman10-regular" 或直接 "lmroman10-regular"。
func Load(name string) ([]byte, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "embed:"))
	data, ok := builtin[key]
	if !ok {
		return nil, fmt.Errorf("读取内置字体 %s 失败: 未知字体", name)
	}
	return data, nil
}

// Resolve 按字体族与粗体/斜体选择内置字体名；未知字体族使用 serif。
func Resolve(family string, bold, italic bool) string {
	fam, ok := families[strings.ToLower(strings.TrimSpace(family))]
	if !ok {
		if _, known := builtin[strings.ToLower(family)]; known {
			return strings.ToLower(family)
		}
		fam = families["serif"]
	}
	switch {
	case bold && italic:
		return fam["bolditalic"]
	case bold:
		return fam["bold"]
	case italic:
		return fam["italic"]
	default:
		return fam["regular"]
	}
}

// Names 列出所有内置字体名。
func Names() []string {
	out := make([]string, 0, len(builtin))
	for name := range builtin {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
