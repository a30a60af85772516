package blocklist

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/semihalev/zlog/v2"
)

// reloadDelay coalesces the burst of events editors produce on save.
const reloadDelay = 250 * time.Millisecond

// Watcher reloads a BlockList when one of its files changes.
type Watcher struct {
	bl      *BlockList
	watcher *fsnotify.Watcher
	names   map[string]bool

	// Reloaded, if set, is called after every successful reload.
	Reloaded func()
}

// NewWatcher watches the directories holding bl's files. Directories are
// watched instead of the files so that atomic replace-by-rename is seen.
func NewWatcher(bl *BlockList) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		bl:      bl,
		watcher: fw,
		names:   make(map[string]bool),
	}

	dirs := make(map[string]bool)
	for _, path := range bl.Files() {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		w.names[filepath.Clean(abs)] = true
		dirs[filepath.Dir(abs)] = true
	}

	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch blocklist directory: %w", err)
		}
	}

	return w, nil
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if w.isRelevantEvent(event) {
				zlog.Debug("Blocklist file event", "event", event.String())
				timer.Reset(reloadDelay)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			zlog.Error("Blocklist watcher error", "error", err.Error())

		case <-timer.C:
			if err := w.bl.Reload(); err != nil {
				zlog.Error("Blocklist reload failed", "error", err.Error())
				continue
			}

			if w.Reloaded != nil {
				w.Reloaded()
			}
		}
	}
}

func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		abs = event.Name
	}

	return w.names[filepath.Clean(abs)]
}
