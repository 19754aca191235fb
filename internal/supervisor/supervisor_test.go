package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"vire/internal/classifier"
	"vire/internal/event"
	"vire/internal/logging"
	"vire/internal/process"
	"vire/internal/targets"
	"vire/internal/watcher"
)

type fakeChild struct {
	spawner     *fakeSpawner
	incarnation int
	alive       bool
}

func (child *fakeChild) PID() int {
	return 1000 + child.incarnation
}

func (child *fakeChild) Incarnation() int {
	return child.incarnation
}

func (child *fakeChild) Terminate(context.Context) error {
	if child.alive {
		child.alive = false
		child.spawner.log = append(child.spawner.log, fmt.Sprintf("terminate %d", child.incarnation))
	}
	return nil
}

type fakeSpawner struct {
	children []*fakeChild
	clears   []int
	log      []string
	overlap  bool
	failNext bool
	onSpawn  func(incarnation int)
}

func (spawner *fakeSpawner) Spawn(clear int) (Child, error) {
	if spawner.failNext {
		spawner.failNext = false
		return nil, errors.New("start ./app: no such file or directory")
	}
	for _, child := range spawner.children {
		if child.alive {
			spawner.overlap = true
		}
	}
	child := &fakeChild{spawner: spawner, incarnation: len(spawner.children) + 1, alive: true}
	spawner.children = append(spawner.children, child)
	spawner.clears = append(spawner.clears, clear)
	spawner.log = append(spawner.log, fmt.Sprintf("spawn %d", child.incarnation))
	if spawner.onSpawn != nil {
		spawner.onSpawn(child.incarnation)
	}
	return child, nil
}

func (spawner *fakeSpawner) live() int {
	count := 0
	for _, child := range spawner.children {
		if child.alive {
			count++
		}
	}
	return count
}

type fakeReexec struct {
	calls    int
	restored int
	err      error
}

func (r *fakeReexec) exec(restore func() error) error {
	r.calls++
	if restore != nil {
		if err := restore(); err != nil {
			return err
		}
	}
	return r.err
}

type harness struct {
	queue      *event.Queue[event.Event]
	classifier *classifier.Classifier
	spawner    *fakeSpawner
	reexec     *fakeReexec
	stdout     *bytes.Buffer
	stderr     *bytes.Buffer
	logger     *logging.Logger
	options    Options
}

func newHarness(auto bool) *harness {
	queue := event.NewQueue[event.Event]()
	set := targets.FromPaths(
		[]string{"/src/mod.py", "/src/settings.py"},
		[]string{"/src/a.txt", "/src/b.txt"},
	)
	h := &harness{
		queue:   queue,
		spawner: &fakeSpawner{},
		reexec:  &fakeReexec{},
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
		logger:  logging.Discard(),
	}
	h.classifier = classifier.New(set, nil, queue, classifier.Options{AutoFullReload: auto})
	h.options = Options{
		Spawner:   h.spawner,
		Events:    queue,
		OutOfSync: h.classifier.OutOfSync(),
		Reexec:    h.reexec.exec,
		RestoreTerminal: func() error {
			h.reexec.restored++
			return nil
		},
		AutoFullReload: auto,
		Stdout:         h.stdout,
		Stderr:         h.stderr,
		Logger:         h.logger,
	}
	return h
}

func (h *harness) keys(keys string) {
	for i := 0; i < len(keys); i++ {
		h.queue.Put(event.NewKeyEvent(keys[i]))
	}
}

func (h *harness) run(t *testing.T) State {
	t.Helper()
	supervisor, err := New(h.options)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	state, err := supervisor.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return state
}

func TestQuitTerminatesChild(t *testing.T) {
	h := newHarness(false)
	h.keys("q")

	if state := h.run(t); state != StateQuit {
		t.Fatalf("expected quit, got %s", state)
	}
	if got := strings.Join(h.spawner.log, ","); got != "spawn 1,terminate 1" {
		t.Fatalf("unexpected lifecycle %s", got)
	}
	if h.spawner.live() != 0 {
		t.Fatalf("expected no live child after quit")
	}
}

func TestGlobChangeRespawnsOncePerWakeUp(t *testing.T) {
	h := newHarness(false)
	h.classifier.HandleBatch(watcher.Batch{Paths: []string{"/src/a.txt", "/src/b.txt"}})
	h.keys("q")

	h.run(t)

	want := "spawn 1,terminate 1,spawn 2,terminate 2"
	if got := strings.Join(h.spawner.log, ","); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if h.spawner.overlap {
		t.Fatalf("two children were alive at once")
	}
}

func TestManualRerunTwice(t *testing.T) {
	h := newHarness(false)
	h.keys("r q")

	h.run(t)

	if len(h.spawner.children) != 3 {
		t.Fatalf("expected 3 incarnations, got %d", len(h.spawner.children))
	}
	if h.spawner.overlap || h.spawner.live() != 0 {
		t.Fatalf("expected at most one live child and none after quit")
	}
}

func TestPreloadChangeOnlyReportsAdvisory(t *testing.T) {
	h := newHarness(false)
	h.classifier.HandleBatch(watcher.Batch{Paths: []string{"/src/mod.py"}})
	h.keys("xyq")

	h.run(t)

	if len(h.spawner.children) != 1 {
		t.Fatalf("preload change must not respawn, got %d incarnations", len(h.spawner.children))
	}
	out := h.stderr.String()
	if strings.Count(out, "Press R for full reload.") != 1 {
		t.Fatalf("expected advisory exactly once, got %q", out)
	}
	want := "vire: Preloaded files have been modified:\n        /src/mod.py\n      Press R for full reload.\n"
	if out != want {
		t.Fatalf("expected advisory %q, got %q", want, out)
	}
	if h.reexec.calls != 0 {
		t.Fatalf("unexpected full reload")
	}
}

func TestAdvisoryRepeatsWhenSetChanges(t *testing.T) {
	h := newHarness(false)
	h.classifier.HandleBatch(watcher.Batch{Paths: []string{"/src/mod.py"}})
	h.spawner.onSpawn = func(incarnation int) {
		if incarnation == 2 {
			h.classifier.HandleBatch(watcher.Batch{Paths: []string{"/src/settings.py"}})
		}
	}
	h.keys("xrxq")

	h.run(t)

	out := h.stderr.String()
	if strings.Count(out, "Press R for full reload.") != 2 {
		t.Fatalf("expected advisory twice, got %q", out)
	}
	if !strings.Contains(out, "        /src/mod.py\n        /src/settings.py\n") {
		t.Fatalf("expected both paths in second advisory, got %q", out)
	}
}

func TestAdvisoryRepeatsForEachIncarnation(t *testing.T) {
	h := newHarness(false)
	h.classifier.HandleBatch(watcher.Batch{Paths: []string{"/src/mod.py"}})
	h.keys("rcq")

	h.run(t)

	if len(h.spawner.children) != 3 {
		t.Fatalf("expected 3 incarnations, got %d", len(h.spawner.children))
	}
	out := h.stderr.String()
	if strings.Count(out, "Press R for full reload.") != 3 {
		t.Fatalf("expected advisory once per incarnation, got %q", out)
	}
}

func TestSilentSuppressesAdvisory(t *testing.T) {
	h := newHarness(false)
	h.options.Silent = true
	h.classifier.HandleBatch(watcher.Batch{Paths: []string{"/src/mod.py"}})
	h.keys("q")

	h.run(t)

	if h.stderr.Len() != 0 {
		t.Fatalf("expected no advisory, got %q", h.stderr.String())
	}
}

func TestClearKeysRespawnWithClear(t *testing.T) {
	h := newHarness(false)
	h.keys("cCq")

	h.run(t)

	if fmt.Sprint(h.spawner.clears) != "[0 1 2]" {
		t.Fatalf("unexpected clear intensities %v", h.spawner.clears)
	}
}

func TestFullReloadKey(t *testing.T) {
	h := newHarness(false)
	h.keys("R")

	if state := h.run(t); state != StateFullReload {
		t.Fatalf("expected full reload, got %s", state)
	}
	if got := strings.Join(h.spawner.log, ","); got != "spawn 1,terminate 1" {
		t.Fatalf("expected child terminated before reload, got %s", got)
	}
	if h.stdout.String() != "\x1b[2J\x1b[H" {
		t.Fatalf("expected clear screen before reload, got %q", h.stdout.String())
	}
	if h.reexec.calls != 1 || h.reexec.restored != 1 {
		t.Fatalf("expected one re-exec with terminal restore, got %+v", h.reexec)
	}
}

func TestAutoFullReloadWinsOverKeystroke(t *testing.T) {
	h := newHarness(true)
	h.options.Clear = 2
	h.spawner.onSpawn = func(incarnation int) {
		if incarnation == 1 {
			h.keys("r")
			h.classifier.HandleBatch(watcher.Batch{Paths: []string{"/src/mod.py"}})
		}
	}

	if state := h.run(t); state != StateFullReload {
		t.Fatalf("expected full reload, got %s", state)
	}
	if len(h.spawner.children) != 1 {
		t.Fatalf("keystroke must not respawn once a reload is pending")
	}
	if h.stdout.String() != "\x1b[2J\x1b[3J\x1b[H" {
		t.Fatalf("expected configured clear intensity, got %q", h.stdout.String())
	}
}

func TestAutoFullReloadWithoutKeystroke(t *testing.T) {
	h := newHarness(true)
	h.spawner.onSpawn = func(incarnation int) {
		if incarnation == 2 {
			h.classifier.HandleBatch(watcher.Batch{Paths: []string{"/src/settings.py", "/src/a.txt"}})
		}
	}
	h.keys("r")

	if state := h.run(t); state != StateFullReload {
		t.Fatalf("expected full reload, got %s", state)
	}
	if h.reexec.calls != 1 {
		t.Fatalf("expected re-exec, got %d calls", h.reexec.calls)
	}
	if h.spawner.live() != 0 {
		t.Fatalf("expected child terminated before re-exec")
	}
}

func TestInterruptQuitsAndLogsMetrics(t *testing.T) {
	h := newHarness(false)
	h.options.Metrics = func() map[string]string {
		return map[string]string{"batches": "3"}
	}
	h.queue.Put(event.NewInterruptEvent("interrupt"))

	if state := h.run(t); state != StateQuit {
		t.Fatalf("expected quit, got %s", state)
	}
	found := false
	for _, entry := range h.logger.Buffer().List() {
		if entry.Message == "watcher metrics" && entry.Context["batches"] == "3" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected watcher metrics in log")
	}
}

func TestClosedQueueQuits(t *testing.T) {
	h := newHarness(false)
	h.queue.Close()

	if state := h.run(t); state != StateQuit {
		t.Fatalf("expected quit, got %s", state)
	}
	if h.spawner.live() != 0 {
		t.Fatalf("expected child terminated")
	}
}

func TestSpawnFailureKeepsRunning(t *testing.T) {
	h := newHarness(false)
	h.spawner.failNext = true
	h.keys("rq")

	if state := h.run(t); state != StateQuit {
		t.Fatalf("expected quit, got %s", state)
	}
	if got := strings.Join(h.spawner.log, ","); got != "spawn 1,terminate 1" {
		t.Fatalf("expected second spawn to succeed, got %s", got)
	}
}

func TestReexecFailureIsFatal(t *testing.T) {
	h := newHarness(false)
	h.reexec.err = errors.New("exec /usr/local/bin/vire: permission denied")
	h.keys("R")

	supervisor, err := New(h.options)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	state, err := supervisor.Run(context.Background())
	if state != StateFullReload || !errors.Is(err, process.ErrReexec) {
		t.Fatalf("expected fatal re-exec error, got %s, %v", state, err)
	}
}

func TestNewRequiresSpawnerAndEvents(t *testing.T) {
	if _, err := New(Options{Events: event.NewQueue[event.Event]()}); err == nil {
		t.Fatalf("expected missing spawner error")
	}
	if _, err := New(Options{Spawner: &fakeSpawner{}}); err == nil {
		t.Fatalf("expected missing events error")
	}
}
