package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// stamp identifies one observed version of a file.
type stamp struct {
	exists  bool
	size    int64
	modTime time.Time
}

func statStamp(path string) stamp {
	info, err := os.Stat(path)
	if err != nil {
		return stamp{}
	}
	return stamp{exists: true, size: info.Size(), modTime: info.ModTime()}
}

// PathMonitor watches individual files through their parent directories,
// so files that are replaced by rename are still tracked. Callbacks run
// sequentially on the watcher goroutine and only when the file's size,
// mtime or existence actually changed.
type PathMonitor struct {
	logger *slog.Logger

	mu        sync.Mutex
	callbacks map[string][]Callback
	stamps    map[string]stamp
	started   bool
}

func NewPathMonitor(logger *slog.Logger) *PathMonitor {
	return &PathMonitor{
		logger:    logger,
		callbacks: map[string][]Callback{},
		stamps:    map[string]stamp{},
	}
}

// Add registers fn for path. Paths must be added before Start.
func (p *PathMonitor) Add(path string, fn Callback) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("path monitor already started")
	}
	p.callbacks[abs] = append(p.callbacks[abs], fn)
	p.stamps[abs] = statStamp(abs)
	return nil
}

// Start begins watching. The watcher stops when ctx is done.
func (p *PathMonitor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("path monitor already started")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dirs := map[string]struct{}{}
	for path := range p.callbacks {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = w.Close()
			return fmt.Errorf("create watched dir %s: %w", dir, err)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	p.started = true
	go p.loop(ctx, w)
	return nil
}

func (p *PathMonitor) loop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			p.handle(ctx, filepath.Clean(event.Name))

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			p.logger.Error("path monitor error", "err", err)
		}
	}
}

func (p *PathMonitor) handle(ctx context.Context, path string) {
	p.mu.Lock()
	fns, watched := p.callbacks[path]
	if !watched {
		p.mu.Unlock()
		return
	}
	current := statStamp(path)
	if current == p.stamps[path] {
		p.mu.Unlock()
		return
	}
	p.stamps[path] = current
	p.mu.Unlock()

	p.logger.Debug("watched path changed", "path", path, "exists", current.exists)
	for _, fn := range fns {
		fn(ctx, path)
	}
}
