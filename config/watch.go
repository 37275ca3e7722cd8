package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听配置文件，写入或重建后重新加载并回调。
// 监听所在目录而不是文件本身，编辑器以 rename 方式保存时也能收到事件。
type Watcher struct {
	path     string
	cooldown time.Duration
	fs       *fsnotify.Watcher
	log      *zap.Logger
	last     time.Time
}

// NewWatcher 创建监听器；cooldown 内的重复事件被合并。
func NewWatcher(path string, cooldown time.Duration, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}
	return &Watcher{path: abs, cooldown: cooldown, fs: fw, log: log.Named("config")}, nil
}

// Run 阻塞直到 ctx 取消。加载失败的版本被记录并跳过。
func (w *Watcher) Run(ctx context.Context, onUpdate func(AppConfig)) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload(onUpdate)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(onUpdate func(AppConfig)) {
	if w.cooldown > 0 && time.Since(w.last) < w.cooldown {
		return
	}
	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		w.log.Warn("reload config failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.last = time.Now()
	w.log.Info("config reloaded", zap.String("path", w.path))
	if onUpdate != nil {
		onUpdate(cfg)
	}
}
