package watcher

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// coalescer gathers paths from the first modification until its window
// elapses. It is owned by the run loop and is not safe for concurrent use.
type coalescer struct {
	window  time.Duration
	pending map[string]struct{}
	timer   *time.Timer
}

func newCoalescer(window time.Duration) *coalescer {
	return &coalescer{
		window:  window,
		pending: make(map[string]struct{}),
	}
}

// add records path and reports whether it merged into an open window.
func (c *coalescer) add(path string) bool {
	merged := c.timer != nil
	c.pending[path] = struct{}{}
	if c.timer == nil {
		c.timer = time.NewTimer(c.window)
	}
	return merged
}

// arm opens a window without recording a path.
func (c *coalescer) arm() {
	if c.timer == nil {
		c.timer = time.NewTimer(c.window)
	}
}

// ready is nil while no window is open, which disables its select case.
func (c *coalescer) ready() <-chan time.Time {
	if c == nil || c.timer == nil {
		return nil
	}
	return c.timer.C
}

func (c *coalescer) take() []string {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(c.pending))
	for path := range c.pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	c.pending = make(map[string]struct{})
	return paths
}

func (c *coalescer) stop() {
	if c == nil {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
}

func (watcher *Watcher) handleEvent(event fsnotify.Event) {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return
	}
	resolved, ok := watcher.registrations[event.Name]
	watcher.mutex.Unlock()
	if !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Write):
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if !watcher.rearm(event.Name) {
			return
		}
	default:
		return
	}

	if watcher.coalesce.add(resolved) {
		atomic.AddUint64(&watcher.eventsCoalesced, 1)
	}
}

func (watcher *Watcher) flush() {
	lost := watcher.retryLost()
	for _, resolved := range lost {
		watcher.coalesce.add(resolved)
	}
	paths := watcher.coalesce.take()
	if len(paths) == 0 {
		return
	}
	atomic.AddUint64(&watcher.batches, 1)
	atomic.AddUint64(&watcher.pathsDelivered, uint64(len(paths)))
	if watcher.onBatch != nil {
		watcher.onBatch(Batch{Paths: paths, Timestamp: time.Now().UTC()})
	}
}
