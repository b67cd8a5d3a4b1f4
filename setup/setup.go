// Package setup 以 TOML 文件保存页面设置与正文字体设置。
package setup

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ByLCY/quire/layout"
)

// File 是 TOML 文件的结构。长度均为带单位的字符串（pt、mm、cm、in），无单位时按 pt 处理。
type File struct {
	// Paper 为预设纸张名（Letter、A4 等）；与 Width/Height 同时给出时以 Width/Height 为准。
	Paper       string   `toml:"paper,omitempty"`
	Width       string   `toml:"width,omitempty"`
	Height      string   `toml:"height,omitempty"`
	Orientation string   `toml:"orientation,omitempty"`
	Margins     Margins  `toml:"margins"`
	Header      *Caption `toml:"header,omitempty"`
	Footer      *Caption `toml:"footer,omitempty"`
	Body        Body     `toml:"body"`
}

// Margins 中 All 为四边的缺省值。
type Margins struct {
	All    string `toml:"all,omitempty"`
	Top    string `toml:"top,omitempty"`
	Right  string `toml:"right,omitempty"`
	Bottom string `toml:"bottom,omitempty"`
	Left   string `toml:"left,omitempty"`
}

type Caption struct {
	Enabled bool   `toml:"enabled"`
	Depth   string `toml:"depth,omitempty"`
	Text    string `toml:"text,omitempty"`
}

type Body struct {
	Font       string `toml:"font,omitempty"`
	Size       string `toml:"size,omitempty"`
	LineHeight string `toml:"line-height,omitempty"`
}

// Settings 是解析后的设置，所有长度均为 pt。
type Settings struct {
	Page       layout.PageSetup
	FontFamily string
	FontSize   float64
	LineHeight layout.LineHeightSpec
}

// Default 返回 Letter 纸、1in 边距、居中页码页脚的默认设置。
func Default() Settings {
	return Settings{
		Page: layout.PageSetup{
			PaperWidth:  612,
			PaperHeight: 792,
			Margin:      layout.Margin{Top: 72, Right: 72, Bottom: 72, Left: 72},
			HasFooter:   true,
			FooterDepth: 24,
			FooterText:  "${page} / ${pages}",
		},
		FontFamily: "serif",
		FontSize:   11,
		LineHeight: layout.DefaultLineHeight,
	}
}

// Parse 解析 TOML 内容；未出现的字段沿用 Default。
func Parse(data []byte) (Settings, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return Settings{}, fmt.Errorf("解析页面设置失败: %w", err)
	}
	return f.Settings()
}

// LoadFile 读取并解析设置文件。
func LoadFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("读取页面设置失败: %w", err)
	}
	return Parse(data)
}

// Settings 把文件结构转换为 pt 表示的设置。
func (f File) Settings() (Settings, error) {
	s := Default()
	ps := &s.Page

	if f.Paper != "" {
		p, ok := layout.LookupPaper(f.Paper)
		if !ok {
			return s, fmt.Errorf("未知的纸张 %q", f.Paper)
		}
		ps.PaperWidth, ps.PaperHeight = p.Width, p.Height
	}
	if err := lengthInto(&ps.PaperWidth, "width", f.Width); err != nil {
		return s, err
	}
	if err := lengthInto(&ps.PaperHeight, "height", f.Height); err != nil {
		return s, err
	}
	if ps.PaperWidth <= 0 || ps.PaperHeight <= 0 {
		return s, fmt.Errorf("纸张尺寸必须为正数: %gx%g", ps.PaperWidth, ps.PaperHeight)
	}

	switch strings.ToLower(strings.TrimSpace(f.Orientation)) {
	case "", "portrait":
		ps.Orientation = layout.Portrait
	case "landscape":
		ps.Orientation = layout.Landscape
	default:
		return s, fmt.Errorf("未知的纸张方向 %q", f.Orientation)
	}

	m := f.Margins
	if m.All != "" {
		var all float64
		if err := lengthInto(&all, "margins.all", m.All); err != nil {
			return s, err
		}
		ps.Margin = layout.Margin{Top: all, Right: all, Bottom: all, Left: all}
	}
	for _, side := range []struct {
		dst  *float64
		name string
		raw  string
	}{
		{&ps.Margin.Top, "margins.top", m.Top},
		{&ps.Margin.Right, "margins.right", m.Right},
		{&ps.Margin.Bottom, "margins.bottom", m.Bottom},
		{&ps.Margin.Left, "margins.left", m.Left},
	} {
		if err := lengthInto(side.dst, side.name, side.raw); err != nil {
			return s, err
		}
	}

	if err := captionInto(&ps.HasHeader, &ps.HeaderDepth, &ps.HeaderText, "header", f.Header); err != nil {
		return s, err
	}
	if err := captionInto(&ps.HasFooter, &ps.FooterDepth, &ps.FooterText, "footer", f.Footer); err != nil {
		return s, err
	}

	if f.Body.Font != "" {
		s.FontFamily = f.Body.Font
	}
	if err := lengthInto(&s.FontSize, "body.size", f.Body.Size); err != nil {
		return s, err
	}
	if f.Body.LineHeight != "" {
		lh, err := layout.ParseLineHeight(f.Body.LineHeight)
		if err != nil {
			return s, err
		}
		s.LineHeight = lh
	}
	return s, nil
}

// File 把设置还原为文件结构，长度统一写成 pt。
func (s Settings) File() File {
	ps := s.Page
	f := File{
		Width:   pt(ps.PaperWidth),
		Height:  pt(ps.PaperHeight),
		Margins: Margins{Top: pt(ps.Margin.Top), Right: pt(ps.Margin.Right), Bottom: pt(ps.Margin.Bottom), Left: pt(ps.Margin.Left)},
		Header:  &Caption{Enabled: ps.HasHeader, Depth: pt(ps.HeaderDepth), Text: ps.HeaderText},
		Footer:  &Caption{Enabled: ps.HasFooter, Depth: pt(ps.FooterDepth), Text: ps.FooterText},
		Body:    Body{Font: s.FontFamily, Size: pt(s.FontSize), LineHeight: lineHeightString(s.LineHeight)},
	}
	f.Orientation = ps.Orientation.String()
	return f
}

// Encode 序列化为 TOML。
func (s Settings) Encode() ([]byte, error) {
	data, err := toml.Marshal(s.File())
	if err != nil {
		return nil, fmt.Errorf("序列化页面设置失败: %w", err)
	}
	return data, nil
}

func lengthInto(dst *float64, name, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	l, err := layout.ParseLength(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if l.Value < 0 {
		return fmt.Errorf("%s 不能为负数: %s", name, raw)
	}
	*dst = l.ToPT()
	return nil
}

// captionInto 在文件给出 [header]/[footer] 表时整体覆盖默认值。
func captionInto(enabled *bool, depth *float64, text *string, name string, c *Caption) error {
	if c == nil {
		return nil
	}
	*enabled, *text, *depth = c.Enabled, c.Text, 0
	return lengthInto(depth, name+".depth", c.Depth)
}

func pt(v float64) string { return fmt.Sprintf("%gpt", v) }

func lineHeightString(s layout.LineHeightSpec) string {
	if s.Kind == layout.LineHeightAbsolute {
		return pt(s.Len.ToPT())
	}
	return fmt.Sprintf("%gx", s.Factor)
}
