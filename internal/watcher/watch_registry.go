package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
)

// Add registers a modification watch for path. Relative paths are made
// absolute; the batch reports the symlink-resolved path.
func (watcher *Watcher) Add(path string) error {
	if watcher == nil {
		return errors.New("watcher is nil")
	}
	if path == "" {
		return errors.New("path is required")
	}
	name, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(name)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", name)
	}
	resolved := name
	if evaluated, err := filepath.EvalSymlinks(name); err == nil {
		resolved = evaluated
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return errors.New("watcher is closed")
	}
	if _, ok := watcher.registrations[name]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	if watcher.maxWatches > 0 && len(watcher.registrations) >= watcher.maxWatches {
		watcher.mutex.Unlock()
		return ErrMaxWatchesExceeded
	}
	watcher.registrations[name] = resolved
	activeCount := len(watcher.registrations)
	watcher.mutex.Unlock()

	if err := watcher.addWatch(name); err != nil {
		watcher.mutex.Lock()
		delete(watcher.registrations, name)
		watcher.mutex.Unlock()
		watcher.logWarn("watch add failed", map[string]string{
			"path":  name,
			"error": err.Error(),
		})
		return err
	}
	watcher.logDebug("watch added", name, activeCount)
	return nil
}

// AddAll registers every path and joins the failures.
func (watcher *Watcher) AddAll(paths []string) error {
	var addErr error
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			addErr = errors.Join(addErr, fmt.Errorf("watch %s: %w", path, err))
		}
	}
	return addErr
}

func (watcher *Watcher) addWatch(name string) error {
	watcher.mutex.Lock()
	source := watcher.watcher
	watcher.mutex.Unlock()
	if source == nil {
		return errors.New("watcher is closed")
	}
	return source.Add(name)
}

// rearm re-adds a watch dropped by a remove or rename. It reports whether
// the path is watched again; otherwise the path is retried on the next flush.
func (watcher *Watcher) rearm(name string) bool {
	if _, err := os.Stat(name); err == nil {
		if err := watcher.addWatch(name); err == nil {
			return true
		}
	}
	watcher.mutex.Lock()
	watcher.lost[name] = struct{}{}
	watcher.mutex.Unlock()
	watcher.coalesce.arm()
	return false
}

func (watcher *Watcher) retryLost() []string {
	watcher.mutex.Lock()
	if len(watcher.lost) == 0 {
		watcher.mutex.Unlock()
		return nil
	}
	names := make([]string, 0, len(watcher.lost))
	for name := range watcher.lost {
		names = append(names, name)
	}
	watcher.lost = make(map[string]struct{})
	watcher.mutex.Unlock()
	sort.Strings(names)

	recovered := make([]string, 0, len(names))
	for _, name := range names {
		if err := watcher.addWatch(name); err != nil {
			atomic.AddUint64(&watcher.watchesLost, 1)
			watcher.logDebug("watch lost", name, watcher.activeCount())
			continue
		}
		watcher.mutex.Lock()
		resolved := watcher.registrations[name]
		watcher.mutex.Unlock()
		recovered = append(recovered, resolved)
	}
	return recovered
}

func (watcher *Watcher) activeCount() int {
	watcher.mutex.Lock()
	defer watcher.mutex.Unlock()
	return len(watcher.registrations)
}
