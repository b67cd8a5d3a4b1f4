package canvasrenderer

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"

	"github.com/ByLCY/quire/fonts"
	"github.com/ByLCY/quire/layout"
)

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

// fontSet loads font families on demand and caches faces and glyph advances.
type fontSet struct {
	baseDir string
	family  string
	size    float64
	blobs   map[string][]byte // injected fonts, by unique name

	mu       sync.Mutex
	families map[string]*canvas.FontFamily
	faces    map[faceKey]*canvas.FontFace
	advances map[advanceKey]float64
	fallback *canvas.FontFamily
}

type faceKey struct {
	font string
	size float64
	col  layout.Color
}

type advanceKey struct {
	font string
	size float64
	r    rune
}

func newFontSet(opts Options) (*fontSet, error) {
	fs := &fontSet{
		baseDir:  opts.BaseDir,
		family:   opts.FontFamily,
		size:     opts.FontSize,
		blobs:    map[string][]byte{},
		families: map[string]*canvas.FontFamily{},
		faces:    map[faceKey]*canvas.FontFace{},
		advances: map[advanceKey]float64{},
	}
	for name, res := range opts.Fonts {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			fs.blobs[name] = res.Bytes
			continue
		}
		if res.Path != "" {
			data, err := os.ReadFile(res.Path)
			if err != nil {
				return nil, fmt.Errorf("读取字体 %s 失败: %w", name, err)
			}
			fs.blobs[name] = data
		}
	}
	data, err := fonts.Load(fonts.Fallback)
	if err != nil {
		return nil, err
	}
	fs.fallback = canvas.NewFontFamily("quire-fallback")
	if err := fs.fallback.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, fmt.Errorf("加载后备字体失败: %w", err)
	}
	return fs, nil
}

// fontName resolves the source of a style: an injected font (built-in:), an
// embedded font (embed:), a family alias such as serif or sans, or a file path.
func (fs *fontSet) fontName(st layout.Style) string {
	name := st.Font
	if name == "" {
		name = fs.family
	}
	switch {
	case strings.HasPrefix(name, "built-in:"), strings.HasPrefix(name, "builtin:"),
		strings.HasPrefix(name, "embed:"), strings.ContainsAny(name, `/\`), filepath.Ext(name) != "":
		return name
	}
	return "embed:" + fonts.Resolve(name, st.Bold, st.Italic)
}

func (fs *fontSet) sizeOf(st layout.Style) float64 {
	if st.Size > 0 {
		return st.Size
	}
	return fs.size
}

// face returns the font face for st; families that fail to load fall back to Go Regular.
func (fs *fontSet) face(st layout.Style) *canvas.FontFace {
	key := faceKey{font: fs.fontName(st), size: fs.sizeOf(st), col: st.Color}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if f, ok := fs.faces[key]; ok {
		return f
	}
	family := fs.ensureFamilyLocked(key.font)
	f := family.Face(key.size, colorFromLayout(st.Color), canvas.FontRegular, canvas.FontNormal)
	fs.faces[key] = f
	return f
}

// advance returns the advance width of r in points.
func (fs *fontSet) advance(r rune, st layout.Style) float64 {
	key := advanceKey{font: fs.fontName(st), size: fs.sizeOf(st), r: r}
	fs.mu.Lock()
	w, ok := fs.advances[key]
	fs.mu.Unlock()
	if ok {
		return w
	}
	w = toPt(fs.face(st).TextWidth(string(r)))
	fs.mu.Lock()
	fs.advances[key] = w
	fs.mu.Unlock()
	return w
}

func (fs *fontSet) ensureFamilyLocked(name string) *canvas.FontFamily {
	if fam, ok := fs.families[name]; ok {
		return fam
	}
	fam := canvas.NewFontFamily(name)
	data, err := fs.loadFontBytes(name)
	if err == nil {
		err = fam.LoadFont(data, 0, canvas.FontRegular)
	}
	if err != nil {
		fam = fs.fallback
	}
	fs.families[name] = fam
	return fam
}

func (fs *fontSet) loadFontBytes(src string) ([]byte, error) {
	if strings.HasPrefix(src, "built-in:") || strings.HasPrefix(src, "builtin:") {
		name := strings.TrimPrefix(strings.TrimPrefix(src, "built-in:"), "builtin:")
		if blob, ok := fs.blobs[name]; ok {
			return blob, nil
		}
		return nil, fmt.Errorf("找不到内置字体资源 built-in:%s", name)
	}
	if strings.HasPrefix(src, "embed:") {
		return fonts.Load(src)
	}
	// Path based
	path := src
	if fs.baseDir == "" && !filepath.IsAbs(path) {
		return nil, fmt.Errorf("未指定资源目录时不允许直接使用字体路径：%s（请改用 built-in: 或 embed:）", src)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(fs.baseDir, path)
	}
	return os.ReadFile(path)
}

func colorFromLayout(c layout.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, 1.0)
}

// toPt 将毫米(mm)转换为点(pt)。
func toPt(mm float64) float64 { return mm * layout.MmToPt }

// toMm 将点(pt)转换为毫米(mm)。
func toMm(pt float64) float64 { return pt * layout.PtToMm }
