package watcher

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"vire/internal/logging"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const (
	defaultCoalesce    = 50 * time.Millisecond
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
	errorLogInterval   = 5 * time.Second
)

var ErrMaxWatchesExceeded = errors.New("max watches exceeded")

// New creates a Watcher with default options.
func New() (*Watcher, error) {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a Watcher and starts its event loop.
func NewWithOptions(options Options) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	window := options.Coalesce
	if window <= 0 {
		window = defaultCoalesce
	}

	instance := &Watcher{
		watcher:       watcher,
		logger:        logger,
		onBatch:       options.OnBatch,
		coalesce:      newCoalescer(window),
		registrations: make(map[string]string),
		lost:          make(map[string]struct{}),
		maxWatches:    options.MaxWatches,
		events:        make(chan fsnotify.Event, 64),
		errors:        make(chan error, 4),
		done:          make(chan struct{}),
		errorLimiter:  rate.NewLimiter(rate.Every(errorLogInterval), 1),
		errorHandler:  options.ErrorHandler,
	}

	instance.startForwarder(watcher)
	go instance.run()
	return instance, nil
}

// Close shuts down the watcher and stops event processing.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	source := watcher.watcher
	watcher.watcher = nil
	watcher.mutex.Unlock()

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartTimer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	close(watcher.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

func (watcher *Watcher) run() {
	defer watcher.coalesce.stop()
	for {
		select {
		case event := <-watcher.events:
			watcher.handleEvent(event)
		case <-watcher.coalesce.ready():
			watcher.flush()
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case event, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case watcher.events <- event:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, withWatcherFields(fields))
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	fields := map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	}
	watcher.logger.Debug(message, withWatcherFields(fields))
}

func withWatcherFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+1)
	merged["component"] = "watcher"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	active := watcher.activeCount()
	watcher.restartMutex.Lock()
	restartAttempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		Batches:         atomic.LoadUint64(&watcher.batches),
		PathsDelivered:  atomic.LoadUint64(&watcher.pathsDelivered),
		EventsCoalesced: atomic.LoadUint64(&watcher.eventsCoalesced),
		WatchesLost:     atomic.LoadUint64(&watcher.watchesLost),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: restartAttempts,
	}
}

// Fields renders metrics for structured logging.
func (metrics Metrics) Fields() map[string]string {
	return map[string]string{
		"active_watches":   strconv.Itoa(metrics.ActiveWatches),
		"batches":          strconv.FormatUint(metrics.Batches, 10),
		"paths_delivered":  strconv.FormatUint(metrics.PathsDelivered, 10),
		"events_coalesced": strconv.FormatUint(metrics.EventsCoalesced, 10),
		"watches_lost":     strconv.FormatUint(metrics.WatchesLost, 10),
		"errors":           strconv.FormatUint(metrics.Errors, 10),
		"restart_attempts": strconv.Itoa(metrics.RestartAttempts),
	}
}
