package cache

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听缓存目录，文件变化时使内存条目失效
type Watcher struct {
	cache   *TableCache
	watcher *fsnotify.Watcher

	// OnInvalidate 条目失效后的回调，可为nil
	OnInvalidate func(Entry)
}

// NewWatcher 创建目录监听器
func NewWatcher(c *TableCache) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(c.Store().Dir()); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", c.Store().Dir(), err)
	}
	return &Watcher{cache: c, watcher: w}, nil
}

// Run 处理文件事件直到ctx取消或监听器关闭
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zap.S().Warnw("cache watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	e, ok := ParseFileName(event.Name)
	if !ok {
		return
	}
	w.cache.Invalidate(e.Symbol, e.Kind)
	zap.S().Debugw("cache entry invalidated", "symbol", e.Symbol, "kind", e.Kind, "op", event.Op.String())
	if w.OnInvalidate != nil {
		w.OnInvalidate(e)
	}
}

// Close 停止监听
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
