package binding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate 将文本中的 ${path.to.value} 替换为 data 中的值，支持 ${path|filter} 形式的过滤器。
// 若 data 为空、路径不存在或过滤器未知，则保留原占位符。
func Interpolate(text string, data any) string {
	if data == nil {
		return text
	}
	return exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		path, filter, _ := strings.Cut(groups[1], "|")
		path = strings.TrimSpace(path)
		if path == "" {
			return match
		}
		val, ok := resolvePath(data, path)
		if !ok {
			return match
		}
		out, ok := applyFilter(val, strings.TrimSpace(filter))
		if !ok {
			return match
		}
		return out
	})
}

// Captions 为页眉/页脚模板提供 page、pages、title 与 meta.* 字段。页码从 1 开始。
type Captions struct {
	Title string
	Meta  map[string]string
}

// Expand 展开第 index 页（从 0 开始）的模板。
func (c Captions) Expand(template string, index, pages int) string {
	if !strings.Contains(template, "${") {
		return template
	}
	return Interpolate(template, c.fields(index+1, pages))
}

func (c Captions) fields(page, pages int) map[string]any {
	meta := make(map[string]any, len(c.Meta))
	for k, v := range c.Meta {
		meta[k] = v
	}
	return map[string]any{
		"page":  page,
		"pages": pages,
		"title": c.Title,
		"meta":  meta,
	}
}

func applyFilter(val any, filter string) (string, bool) {
	switch strings.ToLower(filter) {
	case "":
		return fmt.Sprint(val), true
	case "upper":
		return strings.ToUpper(fmt.Sprint(val)), true
	case "lower":
		return strings.ToLower(fmt.Sprint(val)), true
	case "roman":
		n, ok := val.(int)
		if !ok {
			return "", false
		}
		if filter == "ROMAN" {
			return Roman(n), true
		}
		return strings.ToLower(Roman(n)), true
	default:
		return "", false
	}
}

var romanTable = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

// Roman 返回 n 的大写罗马数字；n <= 0 时返回十进制。
func Roman(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	var b strings.Builder
	for _, e := range romanTable {
		for n >= e.value {
			b.WriteString(e.symbol)
			n -= e.value
		}
	}
	return b.String()
}

func resolvePath(data any, path string) (any, bool) {
	current := data
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		name, indexes := parseSegment(segment)
		if name != "" {
			var ok bool
			current, ok = descendMap(current, name)
			if !ok {
				return nil, false
			}
		}
		for _, idxStr := range indexes {
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, false
			}
			var ok bool
			current, ok = descendArray(current, idx)
			if !ok {
				return nil, false
			}
		}
	}
	return current, true
}

func parseSegment(segment string) (string, []string) {
	name := segment
	indexes := []string{}
	if i := strings.Index(segment, "["); i != -1 {
		name = segment[:i]
		rest := segment[i:]
		for len(rest) > 0 {
			if rest[0] != '[' {
				break
			}
			end := strings.IndexByte(rest, ']')
			if end == -1 {
				break
			}
			indexes = append(indexes, rest[1:end])
			rest = rest[end+1:]
		}
	}
	return name, indexes
}

func descendMap(current any, key string) (any, bool) {
	switch c := current.(type) {
	case map[string]any:
		val, ok := c[key]
		return val, ok
	case map[string]string:
		val, ok := c[key]
		return val, ok
	default:
		return nil, false
	}
}

func descendArray(current any, idx int) (any, bool) {
	switch c := current.(type) {
	case []any:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	case []string:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}
