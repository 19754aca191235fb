package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type session struct {
	t       *testing.T
	dir     string
	keys    *os.File
	stdout  *syncBuffer
	stderr  *syncBuffer
	reexecs chan struct{}
	result  chan int
}

func requireFsnotify(t *testing.T) {
	t.Helper()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	_ = watcher.Close()
}

func startSession(t *testing.T, dir string, args ...string) *session {
	t.Helper()
	stdin, keys, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		_ = keys.Close()
		_ = stdin.Close()
	})
	s := &session{
		t:       t,
		dir:     dir,
		keys:    keys,
		stdout:  &syncBuffer{},
		stderr:  &syncBuffer{},
		reexecs: make(chan struct{}, 4),
		result:  make(chan int, 1),
	}
	deps := runDeps{
		WorkDir: dir,
		Stdin:   stdin,
		Stdout:  s.stdout,
		Stderr:  s.stderr,
		Signals: make(chan os.Signal),
		Reexec: func(restore func() error) error {
			if restore != nil {
				_ = restore()
			}
			s.reexecs <- struct{}{}
			return nil
		},
	}
	go func() {
		s.result <- runWithDeps(args, deps)
	}()
	return s
}

func (s *session) press(keys string) {
	s.t.Helper()
	if _, err := s.keys.WriteString(keys); err != nil {
		s.t.Fatalf("write keys: %v", err)
	}
}

func (s *session) waitOutput(want string) {
	s.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(s.stdout.String(), want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.t.Fatalf("timed out waiting for %q; stdout=%q stderr=%q", want, s.stdout.String(), s.stderr.String())
}

func (s *session) wait() int {
	s.t.Helper()
	select {
	case code := <-s.result:
		return code
	case <-time.After(10 * time.Second):
		s.t.Fatalf("vire did not exit; stderr=%q", s.stderr.String())
		return -1
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSessionRespawnsOnGlobChange(t *testing.T) {
	requireFsnotify(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "one")

	s := startSession(t, dir, "-g", "*.txt", "--debounce", "20ms", "sh", "-c", `echo "run $VIRE_INCARNATION"`)
	s.waitOutput("run 1")

	writeFile(t, filepath.Join(dir, "a.txt"), "two")
	s.waitOutput("run 2")

	s.press("q")
	if code := s.wait(); code != exitCodeSuccess {
		t.Fatalf("expected success, got %d", code)
	}
	if strings.Contains(s.stdout.String(), "run 3") {
		t.Fatalf("expected one respawn per change, got %q", s.stdout.String())
	}
}

func TestSessionManualKeys(t *testing.T) {
	dir := t.TempDir()

	s := startSession(t, dir, "-g", "*.none", "sh", "-c", `echo "run $VIRE_INCARNATION"`)
	s.waitOutput("run 1")
	s.press("r")
	s.waitOutput("run 2")
	s.press("c")
	s.waitOutput("\x1b[2J\x1b[Hrun 3")
	s.press("q")

	if code := s.wait(); code != exitCodeSuccess {
		t.Fatalf("expected success, got %d", code)
	}
}

func TestSessionFullReloadKey(t *testing.T) {
	dir := t.TempDir()

	s := startSession(t, dir, "-g", "*.none", "sleep", "30")
	s.press("R")

	if code := s.wait(); code != exitCodeSuccess {
		t.Fatalf("expected success, got %d", code)
	}
	select {
	case <-s.reexecs:
	default:
		t.Fatalf("expected a re-exec")
	}
	if !strings.HasSuffix(s.stdout.String(), "\x1b[2J\x1b[H") {
		t.Fatalf("expected clear before reload, got %q", s.stdout.String())
	}
}

func TestSessionConfigFileChangeTriggersAutoReload(t *testing.T) {
	requireFsnotify(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".vire.toml")
	writeFile(t, configPath, "auto_full_reload = true\nglob = [\"*.none\"]\ndebounce = \"20ms\"\n")

	s := startSession(t, dir, "sh", "-c", "echo ready")
	s.waitOutput("ready")
	writeFile(t, configPath, "auto_full_reload = true\nglob = [\"*.none\"]\ndebounce = \"30ms\"\n")

	if code := s.wait(); code != exitCodeSuccess {
		t.Fatalf("expected success, got %d", code)
	}
	select {
	case <-s.reexecs:
	default:
		t.Fatalf("expected the config change to trigger a full reload")
	}
}

func TestSessionPreloadChangeShowsAdvisory(t *testing.T) {
	requireFsnotify(t)
	dir := t.TempDir()
	modPath := filepath.Join(dir, "mod.cfg")
	writeFile(t, modPath, "x = 1")

	s := startSession(t, dir, "-p", "mod.cfg", "-g", "*.none", "--debounce", "20ms", "sh", "-c", "echo ready")
	s.waitOutput("ready")
	writeFile(t, modPath, "x = 2")

	// The advisory is printed when the loop next wakes up, so keep nudging it
	// with a key that has no action.
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(s.stderr.String(), "Press R for full reload.") {
		if time.Now().After(deadline) {
			t.Fatalf("expected advisory, stderr=%q", s.stderr.String())
		}
		s.press("x")
		time.Sleep(50 * time.Millisecond)
	}
	s.press("q")
	if code := s.wait(); code != exitCodeSuccess {
		t.Fatalf("expected success, got %d", code)
	}
	if strings.Count(s.stdout.String(), "ready") != 1 {
		t.Fatalf("preload change must not respawn, stdout=%q", s.stdout.String())
	}
}
