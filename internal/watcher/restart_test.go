package watcher

import (
	"errors"
	"testing"
	"time"
)

func TestRestartDelayBackoff(t *testing.T) {
	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: restartBaseDelay},
		{attempt: 1, expected: restartBaseDelay * 2},
		{attempt: 2, expected: restartBaseDelay * 4},
	}

	for _, testCase := range cases {
		if got := restartDelay(testCase.attempt); got != testCase.expected {
			t.Fatalf("attempt %d: expected %s, got %s", testCase.attempt, testCase.expected, got)
		}
	}
}

func TestScheduleRestartSetsTimer(t *testing.T) {
	watcher, err := New()
	if err != nil {
		t.Skipf("skipping watcher test (fsnotify unavailable): %v", err)
	}
	defer watcher.Close()

	watcher.scheduleRestart(errors.New("queue overflow"))

	watcher.restartMutex.Lock()
	timer := watcher.restartTimer
	attempts := watcher.restartAttempts
	if timer != nil {
		timer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	if attempts != 1 {
		t.Fatalf("expected 1 restart attempt, got %d", attempts)
	}
	if timer == nil {
		t.Fatalf("expected restart timer to be set")
	}
}

func TestScheduleRestartReportsExhaustion(t *testing.T) {
	reported := make(chan error, 1)
	watcher, err := NewWithOptions(Options{
		ErrorHandler: func(err error) {
			reported <- err
		},
	})
	if err != nil {
		t.Skipf("skipping watcher test (fsnotify unavailable): %v", err)
	}
	defer watcher.Close()

	watcher.restartMutex.Lock()
	watcher.restartAttempts = maxRestartAttempts
	watcher.restartMutex.Unlock()

	watcher.scheduleRestart(errors.New("queue overflow"))

	select {
	case err := <-reported:
		if err == nil || err.Error() != "queue overflow" {
			t.Fatalf("unexpected reported error %v", err)
		}
	default:
		t.Fatalf("expected error handler to run")
	}
}

func TestPerformRestartKeepsRegistrations(t *testing.T) {
	path := writeTempFile(t, "keep.py")
	watcher, err := New()
	if err != nil {
		t.Skipf("skipping watcher test (fsnotify unavailable): %v", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		t.Fatalf("add: %v", err)
	}
	watcher.restartMutex.Lock()
	watcher.restartAttempts = 2
	watcher.restartMutex.Unlock()

	watcher.performRestart()

	metrics := watcher.Metrics()
	if metrics.RestartAttempts != 0 {
		t.Fatalf("expected restart attempts to reset, got %d", metrics.RestartAttempts)
	}
	if metrics.ActiveWatches != 1 {
		t.Fatalf("expected registration to survive restart, got %d", metrics.ActiveWatches)
	}
}
