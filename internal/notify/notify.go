package notify

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Notifier wakes up watching worker processes by touching a well-known marker
// file after jobs have been enqueued. Producers call Notify; they never talk
// to the workers directly.
type Notifier struct {
	path string
}

func NewNotifier(path string) *Notifier {
	return &Notifier{path: path}
}

// Notify touches the marker file. Failures are logged and swallowed: losing a
// wake-up only delays work until the watcher's polling fallback fires.
func (n *Notifier) Notify() {
	now := time.Now()
	if err := os.Chtimes(n.path, now, now); err != nil {
		if !os.IsNotExist(err) {
			zap.S().Warnf("failed to touch notify file %s: %v", n.path, err)
			return
		}
		f, err := os.OpenFile(n.path, os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			zap.S().Warnf("failed to create notify file %s: %v", n.path, err)
			return
		}
		f.Close()
	}
}

// Watcher delivers wake-up signals on C. It watches the marker file with
// fsnotify and degrades to pure periodic polling when the watch cannot be
// established. C always ticks at least once per poll interval, so a missed
// filesystem event never stalls the queue.
type Watcher struct {
	C <-chan struct{}

	path     string
	interval time.Duration
	clock    clockwork.Clock
	ch       chan struct{}
	done     chan struct{}
}

func NewWatcher(path string, pollInterval time.Duration, clock clockwork.Clock) *Watcher {
	ch := make(chan struct{}, 1)
	w := &Watcher{
		C:        ch,
		path:     path,
		interval: pollInterval,
		clock:    clock,
		ch:       ch,
		done:     make(chan struct{}),
	}
	return w
}

func (w *Watcher) Start() {
	// Make sure the marker exists so the watch has something to attach to.
	if _, err := os.Stat(w.path); os.IsNotExist(err) {
		if f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY, 0600); err == nil {
			f.Close()
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		err = fsw.Add(w.path)
	}
	if err != nil {
		zap.S().Warnf("notify watch unavailable, falling back to polling only: %v", err)
		fsw = nil
	}

	go w.run(fsw)
}

func (w *Watcher) Stop() {
	close(w.done)
}

func (w *Watcher) run(fsw *fsnotify.Watcher) {
	if fsw != nil {
		defer fsw.Close()
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if fsw != nil {
			select {
			case <-w.done:
				return
			case <-fsw.Events:
				w.signal()
			case err := <-fsw.Errors:
				zap.S().Warnf("notify watch error: %v", err)
			case <-ticker.Chan():
				w.signal()
			}
		} else {
			select {
			case <-w.done:
				return
			case <-ticker.Chan():
				w.signal()
			}
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}
