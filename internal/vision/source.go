package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/howeyc/fsnotify"
)

// FrameFunc receives each frame of a source in capture order.
type FrameFunc func(name string, frame *ImageFrame) error

// Source delivers captured frames.
type Source interface {
	// Run calls fn for every frame until the source is exhausted, ctx is
	// done or fn returns an error.
	Run(ctx context.Context, fn FrameFunc) error
}

var frameExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".webp": true,
}

// IsFrameFile reports whether path has a supported image extension.
func IsFrameFile(path string) bool {
	return frameExtensions[strings.ToLower(filepath.Ext(path))]
}

// DirSource replays the stills of a directory sorted by file name.
type DirSource struct {
	Dir string
}

// Run decodes and delivers every frame in the directory.
func (s DirSource) Run(ctx context.Context, fn FrameFunc) error {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return fmt.Errorf("vision: cannot list frames: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsFrameFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := LoadFrame(filepath.Join(s.Dir, name))
		if err != nil {
			return err
		}
		if err := fn(name, frame); err != nil {
			return err
		}
	}
	return nil
}

// WatchSource delivers stills as a capture tool writes them into a
// directory. Files that cannot be decoded yet are retried on the next
// modification event.
type WatchSource struct {
	Dir    string
	Logger *log.Logger
}

// Run watches the directory until ctx is done.
func (s WatchSource) Run(ctx context.Context, fn FrameFunc) error {
	logger := s.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "watch"})
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("vision: cannot create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Watch(s.Dir); err != nil {
		return fmt.Errorf("vision: cannot watch %s: %w", s.Dir, err)
	}
	logger.Info("watching for frames", "dir", s.Dir)

	delivered := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-watcher.Event:
			if ev == nil || ev.IsDelete() || ev.IsRename() || !IsFrameFile(ev.Name) {
				continue
			}
			if delivered[ev.Name] {
				continue
			}
			frame, err := LoadFrame(ev.Name)
			if err != nil {
				// Usually a file still being written.
				logger.Debug("frame not ready", "file", ev.Name, "error", err)
				continue
			}
			delivered[ev.Name] = true
			if err := fn(filepath.Base(ev.Name), frame); err != nil {
				return err
			}
		case err := <-watcher.Error:
			logger.Warn("watcher error", "error", err)
		}
	}
}
