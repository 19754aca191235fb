package watcher

import (
	"sync"
	"time"

	"vire/internal/logging"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Batch is the set of registered paths modified during one wake-up.
// Paths are the resolved absolute paths recorded at registration time.
type Batch struct {
	Paths     []string
	Timestamp time.Time
}

// Options controls watcher behavior.
type Options struct {
	Logger *logging.Logger
	// Coalesce is how long the watcher waits after the first modification
	// before delivering the batch.
	Coalesce   time.Duration
	MaxWatches int
	// OnBatch runs on the watcher goroutine for every non-empty batch.
	OnBatch func(Batch)
	// ErrorHandler receives the error that exhausted the restart attempts.
	ErrorHandler func(error)
}

// Metrics reports watcher counters.
type Metrics struct {
	ActiveWatches   int
	Batches         uint64
	PathsDelivered  uint64
	EventsCoalesced uint64
	WatchesLost     uint64
	Errors          uint64
	RestartAttempts int
}

// Watcher is the fsnotify-backed watch source.
type Watcher struct {
	watcher  *fsnotify.Watcher
	mutex    sync.Mutex
	closed   bool
	logger   *logging.Logger
	onBatch  func(Batch)
	coalesce *coalescer

	// registrations maps the watched name to the resolved absolute path.
	registrations map[string]string
	lost          map[string]struct{}
	maxWatches    int

	events chan fsnotify.Event
	errors chan error
	done   chan struct{}

	errorLimiter *rate.Limiter
	errorHandler func(error)

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int

	batches         uint64
	pathsDelivered  uint64
	eventsCoalesced uint64
	watchesLost     uint64
	errorCount      uint64
}
