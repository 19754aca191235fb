// Package classifier splits each watcher batch into preload and ordinary
// paths. Ordinary paths become a change event for the control loop;
// preload paths accumulate in the out-of-sync set until a full reload.
package classifier

import (
	"sort"
	"strconv"
	"sync"

	"vire/internal/event"
	"vire/internal/logging"
	"vire/internal/targets"
	"vire/internal/watcher"
)

// Sink receives classified events.
type Sink interface {
	Put(event.Event) bool
}

// OutOfSync is the set of preload paths modified since this process started.
// The classifier is its only writer; the control loop reads snapshots.
type OutOfSync struct {
	mu    sync.RWMutex
	paths map[string]struct{}
}

func NewOutOfSync() *OutOfSync {
	return &OutOfSync{paths: make(map[string]struct{})}
}

// add merges paths and reports whether the set grew.
func (set *OutOfSync) add(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	grew := false
	for _, path := range paths {
		if _, ok := set.paths[path]; ok {
			continue
		}
		set.paths[path] = struct{}{}
		grew = true
	}
	return grew
}

// Snapshot returns the members sorted.
func (set *OutOfSync) Snapshot() []string {
	if set == nil {
		return nil
	}
	set.mu.RLock()
	defer set.mu.RUnlock()
	out := make([]string, 0, len(set.paths))
	for path := range set.paths {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (set *OutOfSync) Len() int {
	if set == nil {
		return 0
	}
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.paths)
}

func (set *OutOfSync) Contains(path string) bool {
	if set == nil {
		return false
	}
	set.mu.RLock()
	defer set.mu.RUnlock()
	_, ok := set.paths[path]
	return ok
}

// Equal compares two sorted snapshots.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type Options struct {
	Logger *logging.Logger
	// AutoFullReload queues an auto-reload event whenever a batch touches a
	// preload path.
	AutoFullReload bool
}

// Classifier sits between the watcher and the event queue.
type Classifier struct {
	targets    targets.Set
	outOfSync  *OutOfSync
	sink       Sink
	logger     *logging.Logger
	autoReload bool
}

func New(set targets.Set, outOfSync *OutOfSync, sink Sink, options Options) *Classifier {
	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if outOfSync == nil {
		outOfSync = NewOutOfSync()
	}
	return &Classifier{
		targets:    set,
		outOfSync:  outOfSync,
		sink:       sink,
		logger:     logger,
		autoReload: options.AutoFullReload,
	}
}

func (classifier *Classifier) OutOfSync() *OutOfSync {
	return classifier.outOfSync
}

// Classify partitions changed paths and records the preload ones as out of
// sync. The two results never share a path.
func (classifier *Classifier) Classify(changed []string) (ordinary []string, preload []string) {
	for _, path := range changed {
		if classifier.targets.IsPreload(path) {
			preload = append(preload, path)
			continue
		}
		ordinary = append(ordinary, path)
	}
	classifier.outOfSync.add(preload)
	return ordinary, preload
}

// HandleBatch classifies one watcher wake-up. All ordinary paths of the
// wake-up go out as one change event.
func (classifier *Classifier) HandleBatch(batch watcher.Batch) {
	ordinary, preload := classifier.Classify(batch.Paths)
	classifier.logger.Debug("batch classified", map[string]string{
		"ordinary":    strconv.Itoa(len(ordinary)),
		"preload":     strconv.Itoa(len(preload)),
		"out_of_sync": strconv.Itoa(classifier.outOfSync.Len()),
	})
	if classifier.sink == nil {
		return
	}
	if len(ordinary) > 0 {
		classifier.sink.Put(event.NewChangeEvent(ordinary))
	}
	if classifier.autoReload && len(preload) > 0 {
		classifier.sink.Put(event.NewAutoReloadEvent())
	}
}
