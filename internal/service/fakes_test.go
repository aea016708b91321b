package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"labelguard/internal/models"
)

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeAudio struct {
	mu                          sync.Mutex
	success, warning, err, stop int
}

func (a *fakeAudio) PlaySuccess() { a.mu.Lock(); a.success++; a.mu.Unlock() }
func (a *fakeAudio) PlayWarning() { a.mu.Lock(); a.warning++; a.mu.Unlock() }
func (a *fakeAudio) PlayError()   { a.mu.Lock(); a.err++; a.mu.Unlock() }
func (a *fakeAudio) StopAlarm()   { a.mu.Lock(); a.stop++; a.mu.Unlock() }

func (a *fakeAudio) counts() (success, warning, errs, stop int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.success, a.warning, a.err, a.stop
}

type fakeInterlock struct {
	mu      sync.Mutex
	signals []models.Outcome
}

func (f *fakeInterlock) Signal(o models.Outcome) {
	f.mu.Lock()
	f.signals = append(f.signals, o)
	f.mu.Unlock()
}

func (f *fakeInterlock) last() models.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.signals) == 0 {
		return ""
	}
	return f.signals[len(f.signals)-1]
}

// fakePersistence records calls synchronously.
type fakePersistence struct {
	mu       sync.Mutex
	history  [][]models.ValidationResult
	configs  []models.ValidationConfig
	recorded []models.AuditEvent
}

func (f *fakePersistence) SaveHistory(h []models.ValidationResult) {
	f.mu.Lock()
	f.history = append(f.history, h)
	f.mu.Unlock()
}

func (f *fakePersistence) SaveConfig(cfg models.ValidationConfig) {
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	f.mu.Unlock()
}

func (f *fakePersistence) Record(e models.AuditEvent) {
	f.mu.Lock()
	f.recorded = append(f.recorded, e)
	f.mu.Unlock()
}

func (f *fakePersistence) auditTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.recorded))
	for _, e := range f.recorded {
		out = append(out, e.Type)
	}
	return out
}

func (f *fakePersistence) historySaves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history)
}

// fakeStore is an in-memory repository.Store.
type fakeStore struct {
	mu      sync.Mutex
	cfg     models.ValidationConfig
	history []models.ValidationResult
	loadErr error
	saveErr error

	savedConfigs int
	savedHistory int
}

func (s *fakeStore) LoadConfig(context.Context) (models.ValidationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.loadErr
}

func (s *fakeStore) SaveConfig(_ context.Context, cfg models.ValidationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedConfigs++
	s.cfg = cfg
	return s.saveErr
}

func (s *fakeStore) LoadHistory(context.Context) ([]models.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history, s.loadErr
}

func (s *fakeStore) SaveHistory(_ context.Context, h []models.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedHistory++
	s.history = h
	return s.saveErr
}

type machineHarness struct {
	m       *Machine
	clock   *fakeClock
	audio   *fakeAudio
	line    *fakeInterlock
	persist *fakePersistence
	store   *fakeStore
}

var testDefaults = models.ValidationConfig{AutoResetSeconds: 3, SoundEnabled: true}

// startMachine runs a machine over store until the test ends.
func startMachine(t *testing.T, store *fakeStore) *machineHarness {
	t.Helper()
	if store == nil {
		store = &fakeStore{cfg: testDefaults}
	}
	h := &machineHarness{
		clock:   newFakeClock(),
		audio:   &fakeAudio{},
		line:    &fakeInterlock{},
		persist: &fakePersistence{},
		store:   store,
	}
	h.m = NewMachine(MachineDeps{
		Store:     store,
		Persist:   h.persist,
		Audio:     h.audio,
		Interlock: h.line,
		Clock:     h.clock,
		Defaults:  testDefaults,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.m.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	<-h.m.Ready()
	return h
}

func (h *machineHarness) scan(t *testing.T, raw string) (models.Snapshot, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.m.Scan(ctx, raw)
}

// scanOK scans raw and then moves the clock past the dedup window.
func (h *machineHarness) scanOK(t *testing.T, raw string) models.Snapshot {
	t.Helper()
	snap, err := h.scan(t, raw)
	if err != nil {
		t.Fatalf("scan %q: %v", raw, err)
	}
	h.clock.Advance(2500 * time.Millisecond)
	return snap
}

func (h *machineHarness) state(t *testing.T) models.Snapshot {
	t.Helper()
	snap, err := h.m.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return snap
}
