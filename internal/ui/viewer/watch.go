package viewer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
)

// relevant reports whether a change to name affects what the viewer shows.
func relevant(name string) bool {
	base := filepath.Base(name)
	if base == classify.BookFile {
		return true
	}
	return strings.HasPrefix(base, "quick_scan_") && strings.HasSuffix(base, ".json")
}

// Watch calls onChange after writes to session documents or the status book
// in dir settle for debounce. It returns when ctx is done.
func Watch(ctx context.Context, dir string, debounce time.Duration, log *zap.Logger, onChange func()) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("viewer: create %s: %w", dir, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("viewer: watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("viewer: watch %s: %w", dir, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev.Name) || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			log.Debug("sample directory changed", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			onChange()
		}
	}
}
