package locators

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// WatchEvent reports that a watched discovery root changed and a
// rescan is warranted.
type WatchEvent struct {
	// Root is the watched directory the change happened under.
	Root string
}

// Watcher turns raw filesystem events under discovery roots into
// debounced rescan signals. Creation events are held for the settle
// delay so a half-materialized environment isn't classified mid-write,
// and a rate limiter caps rescan storms from rapid event bursts.
type Watcher struct {
	fsw     *fsnotify.Watcher
	events  chan WatchEvent
	settle  time.Duration
	limiter *rate.Limiter
	logger  *log.Logger
	done    chan struct{}
}

// NewWatcher watches the given roots. Roots that don't exist are
// skipped silently; environments appearing later under existing roots
// are still seen.
func NewWatcher(roots []string, settle time.Duration, logger *log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = time.Second
	}

	w := &Watcher{
		fsw:    fsw,
		events: make(chan WatchEvent, 16),
		settle: settle,
		// One rescan per settle window on average, small burst.
		limiter: rate.NewLimiter(rate.Every(settle), 2),
		logger:  logger,
		done:    make(chan struct{}),
	}

	for _, root := range roots {
		if err := fsw.Add(root); err != nil {
			logger.Debug("skipping unwatchable discovery root", "root", root, "err", err)
		}
	}

	go w.loop()
	return w, nil
}

// Events returns the debounced rescan signal channel. It is closed
// when the watcher is closed.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Close stops watching and closes the event channel.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	defer close(w.events)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
	)

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pending = ev.Name
			// Restart the settle timer; storms collapse into one event.
			if timer == nil {
				timer = time.NewTimer(w.settle)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.settle)
			}

		case <-timerC:
			timerC = nil
			timer = nil
			if !w.limiter.Allow() {
				w.logger.Debug("rescan suppressed by rate limit", "path", pending)
				continue
			}
			select {
			case w.events <- WatchEvent{Root: pending}:
			default:
				// Consumer is behind; it will rescan anyway.
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("filesystem watch error", "err", err)
		}
	}
}
