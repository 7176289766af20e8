package scripts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/basket/scriptbot/internal/bus"
)

const debounceWindow = 150 * time.Millisecond

// Watcher publishes bus.TopicScriptsChanged when a script appears in,
// disappears from or is renamed within the directory. Content edits are
// ignored: they do not change what can be launched.
type Watcher struct {
	scanner *Scanner
	bus     *bus.Bus
	logger  *slog.Logger
}

func NewWatcher(scanner *Scanner, b *bus.Bus, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{scanner: scanner, bus: b, logger: logger}
}

// Start begins watching in a background goroutine that exits with ctx.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	abs, err := filepath.Abs(w.scanner.Dir)
	if err != nil {
		_ = fsw.Close()
		return fmt.Errorf("resolve script dir: %w", err)
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return &DirectoryAccessError{Dir: w.scanner.Dir, Err: err}
	}

	go func() {
		defer fsw.Close()

		// Bursts (editor save, mv) collapse to the last op per file name.
		pending := make(map[string]string)
		var order []string
		var timer *time.Timer
		var timerC <-chan time.Time
		flush := func() {
			for _, name := range order {
				op := pending[name]
				w.logger.Info("script directory changed", "script", name, "op", op)
				w.bus.Publish(bus.TopicScriptsChanged, bus.ScriptsChangedEvent{Name: name, Op: op})
			}
			clear(pending)
			order = order[:0]
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				name := filepath.Base(ev.Name)
				op := describeOp(ev.Op)
				if op == "" || !w.scanner.Matches(name) {
					continue
				}
				if _, seen := pending[name]; !seen {
					order = append(order, name)
				}
				pending[name] = op

				if timer == nil {
					timer = time.NewTimer(debounceWindow)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(debounceWindow)
				}
				timerC = timer.C
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("script watcher error", "error", err)
			case <-timerC:
				flush()
				timerC = nil
			}
		}
	}()
	return nil
}

func describeOp(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "created"
	case op.Has(fsnotify.Remove):
		return "removed"
	case op.Has(fsnotify.Rename):
		return "renamed"
	default:
		return ""
	}
}
