package dsl

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ByLCY/quire/layout"
	"github.com/ByLCY/quire/manuscript"
)

// HeadingScale 为未指定字号的标题相对正文字号的倍数。
const HeadingScale = 1.4

// LoadFile 读取并解析稿件文件。baseSize 为正文字号（pt），用于推导标题字号。
func LoadFile(path string, baseSize float64) (*manuscript.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开稿件失败: %w", err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("解析稿件 %s 失败: %w", path, err)
	}
	return Load(doc, baseSize)
}

// Load 把语法树转换为文档缓冲区：每个段落以换行结束，note 挂在它前面的最后一个字符上。
func Load(doc *Document, baseSize float64) (*manuscript.Buffer, error) {
	if doc == nil {
		return nil, fmt.Errorf("稿件为空")
	}
	buf := manuscript.New(string(doc.Title))
	for _, sec := range doc.Sections {
		switch {
		case sec.Meta != nil:
			for _, entry := range sec.Meta.Entries {
				buf.SetMeta(entry.Key, entry.Value.Text())
			}
		case sec.Body != nil:
			for _, block := range sec.Body.Blocks {
				if err := loadBlock(buf, block, baseSize); err != nil {
					return nil, err
				}
			}
		}
	}
	return buf, nil
}

func loadBlock(buf *manuscript.Buffer, block *Block, baseSize float64) error {
	base, err := blockStyle(block, baseSize)
	if err != nil {
		return err
	}
	for _, in := range block.Inlines {
		text := string(in.Text)
		st := base
		switch in.Mark {
		case "strong":
			st.Bold = true
		case "em":
			st.Italic = !st.Italic
		case "code":
			st.Font = "mono"
		case "note":
			anchor := buf.Len() - 1
			if anchor < 0 {
				return fmt.Errorf("%s: 脚注之前没有正文", in.Pos)
			}
			if err := buf.AddFootnote(anchor, text, layout.Style{}); err != nil {
				return fmt.Errorf("%s: %w", in.Pos, err)
			}
			continue
		}
		buf.Append(text, st)
	}
	buf.Append("\n", base)
	return nil
}

func blockStyle(block *Block, baseSize float64) (layout.Style, error) {
	var st layout.Style
	switch block.Kind {
	case "heading":
		st.Bold = true
		if baseSize > 0 {
			st.Size = baseSize * HeadingScale
		}
	case "quote":
		st.Italic = true
	}
	for _, attr := range block.Attrs {
		raw := attr.Value.Text()
		switch attr.Key {
		case "size":
			l, err := layout.ParseLength(raw)
			if err != nil {
				return st, fmt.Errorf("%s: %w", block.Pos, err)
			}
			st.Size = l.ToPT()
		case "font":
			st.Font = raw
		case "color":
			c, err := ParseColor(raw)
			if err != nil {
				return st, fmt.Errorf("%s: %w", block.Pos, err)
			}
			st.Color = c
		default:
			return st, fmt.Errorf("%s: 未知的段落属性 %q", block.Pos, attr.Key)
		}
	}
	return st, nil
}

// ParseColor 解析 #RGB 或 #RRGGBB。
func ParseColor(s string) (layout.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return layout.Color{}, fmt.Errorf("无法解析颜色 %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return layout.Color{}, fmt.Errorf("无法解析颜色 %q: %w", s, err)
	}
	return layout.Color{R: int(v >> 16 & 0xff), G: int(v >> 8 & 0xff), B: int(v & 0xff)}, nil
}
