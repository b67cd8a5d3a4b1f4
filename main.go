package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/ByLCY/quire/binding"
	"github.com/ByLCY/quire/dsl"
	"github.com/ByLCY/quire/layout"
	"github.com/ByLCY/quire/manuscript"
	"github.com/ByLCY/quire/renderer"
	canvasrenderer "github.com/ByLCY/quire/renderer/canvas"
	fpdfrenderer "github.com/ByLCY/quire/renderer/fpdf"
	"github.com/ByLCY/quire/scroll"
	"github.com/ByLCY/quire/setup"
)

type config struct {
	input      string
	setupPath  string
	output     string
	printPath  string
	previewDir string
	debugPath  string
	typesetter string
	offset     float64
	viewport   float64
	watch      bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.input, "in", "examples/demo.quire", "稿件文件路径")
	flag.StringVar(&cfg.setupPath, "setup", "", "页面设置 TOML 文件（为空时使用默认设置）")
	flag.StringVar(&cfg.output, "out", "output/demo.pdf", "PDF 输出路径")
	flag.StringVar(&cfg.printPath, "print", "", "打印文件（PDF spool）输出路径")
	flag.StringVar(&cfg.previewDir, "preview", "", "预览 PNG 输出目录")
	flag.Float64Var(&cfg.offset, "scroll", 0, "预览视口的滚动位置（pt）")
	flag.Float64Var(&cfg.viewport, "viewport", 792, "预览视口高度（pt）")
	flag.StringVar(&cfg.debugPath, "debug", "", "布局调试 JSON 输出路径")
	flag.StringVar(&cfg.typesetter, "typesetter", "canvas", "排版后端：canvas、fpdf（内嵌字体）或 core（PDF 标准字体，不支持预览）")
	flag.BoolVar(&cfg.watch, "watch", false, "页面设置变化时重新导出")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("生成失败: %v", err)
	}
}

// app 持有一次运行期间的文档、设置与分页引擎。
type app struct {
	cfg    config
	log    *slog.Logger
	store  *setup.Store
	doc    *manuscript.Buffer
	engine *layout.Engine
	ts     layout.Typesetter
	canvas *canvasrenderer.Typesetter
	pdf    *fpdfrenderer.Typesetter
}

// run 串联加载、分页与各个输出。
func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	store, err := setup.Open(cfg.setupPath, logger)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, log: logger, store: store}
	if err := a.buildTypesetters(store.Current()); err != nil {
		return err
	}
	doc, err := dsl.LoadFile(cfg.input, store.Current().FontSize)
	if err != nil {
		return err
	}
	a.doc = doc

	opts := layout.DefaultOptions()
	opts.Logger = logger
	engine, err := layout.NewEngine(doc, store.Current().Page, a.ts, opts)
	if err != nil {
		return err
	}
	defer engine.Close()
	a.engine = engine

	changed := make(chan struct{}, 1)
	cancel := store.Subscribe(func(s setup.Settings) {
		engine.SetPageSetup(s.Page)
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	if err := a.export(ctx); err != nil {
		return err
	}
	if !cfg.watch {
		return nil
	}
	if err := store.Watch(ctx); err != nil {
		return err
	}
	logger.Info("监听页面设置", "path", store.Path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := a.export(ctx); err != nil {
				logger.Error("重新导出失败", "err", err)
			}
		}
	}
}

// buildTypesetters 创建分页所用的排版后端；字体与行高取自页面设置。
// 字号与行高在 watch 期间保持不变，只有页面几何会随设置更新。
// canvas 与 fpdf 两个后端使用同一套内嵌字体，打印、PDF 与预览绘制的字形与分页测量的一致；
// core 使用 PDF 标准字体，没有可栅格化的字形，因此不能预览。
func (a *app) buildTypesetters(s setup.Settings) error {
	faces := fpdfrenderer.EmbeddedFaces
	switch a.cfg.typesetter {
	case "canvas", "", "fpdf":
	case "core":
		if a.cfg.previewDir != "" {
			return fmt.Errorf("core 排版后端使用 PDF 标准字体，无法生成预览")
		}
		faces = fpdfrenderer.CoreFaces
	default:
		return fmt.Errorf("未知的排版后端 %q", a.cfg.typesetter)
	}
	a.pdf = fpdfrenderer.NewTypesetter(fpdfrenderer.Options{
		Faces:      faces,
		BaseDir:    filepath.Dir(a.cfg.input),
		FontFamily: s.FontFamily,
		FontSize:   s.FontSize,
		LineHeight: s.LineHeight,
	})
	cts, err := canvasrenderer.NewTypesetter(canvasrenderer.Options{
		BaseDir:    filepath.Dir(a.cfg.input),
		FontFamily: s.FontFamily,
		FontSize:   s.FontSize,
		LineHeight: s.LineHeight,
	})
	if err != nil {
		return err
	}
	a.canvas = cts
	a.ts = cts
	if a.pdfLayout() {
		a.ts = a.pdf
	}
	return nil
}

// pdfLayout 表示分页使用 fpdf 的字宽表。
func (a *app) pdfLayout() bool {
	return a.cfg.typesetter == "fpdf" || a.cfg.typesetter == "core"
}

func (a *app) decorations() renderer.Decorations {
	captions := binding.Captions{Title: a.doc.Title(), Meta: a.doc.Meta()}
	return renderer.DecorationsFor(a.store.Current().Page, layout.Style{}, captions)
}

func (a *app) info() renderer.DocumentInfo {
	meta := a.doc.Meta()
	var keywords []string
	for _, k := range strings.Split(meta["keywords"], ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return renderer.DocumentInfo{
		Title:    a.doc.Title(),
		Subject:  meta["subject"],
		Keywords: keywords,
		Author:   meta["author"],
		Creator:  "quire",
	}
}

// export 生成所有请求的输出。
func (a *app) export(ctx context.Context) error {
	res, err := a.engine.Result(ctx)
	if err != nil {
		return fmt.Errorf("布局计算失败: %w", err)
	}
	if err := res.Validate(); err != nil {
		return err
	}
	deco := a.decorations()

	if a.cfg.debugPath != "" {
		if err := writeDebug(res, a.cfg.debugPath); err != nil {
			return err
		}
	}

	if a.cfg.output != "" {
		var r renderer.Renderer
		if a.pdfLayout() {
			r = fpdfrenderer.NewRenderer(a.pdf, deco, a.info())
		} else {
			r = canvasrenderer.NewRenderer(a.canvas, deco, a.info())
		}
		pdfBytes, err := r.Render(res)
		if err != nil {
			return fmt.Errorf("渲染 PDF 失败: %w", err)
		}
		if err := writeFile(a.cfg.output, pdfBytes); err != nil {
			return err
		}
		fmt.Printf("已生成 PDF：%s（%d 页）\n", a.cfg.output, res.PageCount())
	}

	if a.cfg.printPath != "" {
		if err := a.print(res, deco); err != nil {
			return err
		}
		fmt.Printf("已生成打印文件：%s\n", a.cfg.printPath)
	}

	if a.cfg.previewDir != "" {
		n, err := a.preview(deco)
		if err != nil {
			return err
		}
		fmt.Printf("已生成 %d 张预览：%s\n", n, a.cfg.previewDir)
	}
	return nil
}

func (a *app) print(res *layout.Result, deco renderer.Decorations) error {
	if err := os.MkdirAll(filepath.Dir(a.cfg.printPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	f, err := os.Create(a.cfg.printPath)
	if err != nil {
		return fmt.Errorf("创建打印文件失败: %w", err)
	}
	sink := fpdfrenderer.NewPrintSink(f, a.pdf, a.info())
	if err := renderer.RenderAllPages(res, a.ts, sink, deco); err != nil {
		f.Close()
		return err
	}
	if err := sink.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// preview 以虚拟滚动的方式只绘制视口附近的页面，并把它们写成 PNG。
func (a *app) preview(deco renderer.Decorations) (int, error) {
	if err := os.MkdirAll(a.cfg.previewDir, 0o755); err != nil {
		return 0, fmt.Errorf("创建预览目录失败: %w", err)
	}
	p := renderer.NewPreview(a.engine, a.ts, deco, scroll.Options{}, func() renderer.PageSurface {
		return canvasrenderer.NewSurface(a.canvas, canvasrenderer.DefaultDPMM)
	}, a.log)
	if err := p.Scroll(a.cfg.offset, a.cfg.viewport); err != nil {
		return 0, err
	}
	if pending := p.Pending(); pending != nil {
		<-pending
		if err := p.Scroll(a.cfg.offset, a.cfg.viewport); err != nil {
			return 0, err
		}
	}
	pages := p.Scroller().BoundPages()
	for _, i := range pages {
		sf, ok := p.Surface(i)
		if !ok {
			continue
		}
		path := filepath.Join(a.cfg.previewDir, fmt.Sprintf("page-%03d.png", i+1))
		f, err := os.Create(path)
		if err != nil {
			return 0, fmt.Errorf("创建预览文件失败: %w", err)
		}
		if err := sf.(*canvasrenderer.Surface).WritePNG(f); err != nil {
			f.Close()
			return 0, err
		}
		if err := f.Close(); err != nil {
			return 0, err
		}
	}
	st := p.Scroller().Stats()
	a.log.Debug("预览完成", "window", p.Scroller().CurrentWindow().Range, "allocated", st.Allocated, "reused", st.Reused)
	return len(pages), nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}

func writeDebug(result *layout.Result, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(result, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}
