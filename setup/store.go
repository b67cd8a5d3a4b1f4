package setup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ByLCY/quire/layout"
)

// Store 持有某个设置文件的当前内容，并在内容变化时通知订阅者。
// 文件不存在时使用 Default，首次 Save 时创建。
type Store struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	cur  Settings
	subs map[int]func(Settings)
	next int
}

// Open 打开并加载设置文件。path 为空时仅使用默认设置（不可 Save/Watch）。
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, log: logger, cur: Default(), subs: map[int]func(Settings){}}
	if path == "" {
		return s, nil
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path 返回设置文件路径。
func (s *Store) Path() string { return s.path }

// Load 重新读取文件；内容变化时通知订阅者。读取失败时保留当前设置。
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	next, err := LoadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		next, err = Default(), nil
	}
	if err != nil {
		return err
	}
	s.set(next)
	return nil
}

// Current 返回当前设置。
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// PageSetup 返回当前的页面设置。
func (s *Store) PageSetup() layout.PageSetup { return s.Current().Page }

// Save 写入文件并立即生效。
func (s *Store) Save(next Settings) error {
	if s.path == "" {
		return fmt.Errorf("未指定页面设置文件")
	}
	data, err := next.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("写入页面设置失败: %w", err)
	}
	s.set(next)
	return nil
}

// Subscribe 在设置变化后以新设置回调 fn（在锁外调用）。
func (s *Store) Subscribe(fn func(Settings)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) set(next Settings) {
	s.mu.Lock()
	if next == s.cur {
		s.mu.Unlock()
		return
	}
	s.cur = next
	fns := make([]func(Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(next)
	}
}

// Watch 监听设置文件所在目录，文件被写入、创建或替换时重新加载。
// 监听在返回前建立，随后在后台运行直到 ctx 结束。
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("未指定页面设置文件")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	target := filepath.Clean(s.path)
	// 监听目录而不是文件：编辑器常以改名方式保存
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return fmt.Errorf("监听 %s 失败: %w", filepath.Dir(target), err)
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := s.Load(); err != nil {
					s.log.Warn("重新加载页面设置失败", "path", s.path, "err", err)
					continue
				}
				s.log.Debug("页面设置已重新加载", "path", s.path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("页面设置监听出错", "path", s.path, "err", err)
			}
		}
	}()
	return nil
}
