package service

import (
	"context"
	"sync"
	"time"

	"labelguard/internal/logger"
	"labelguard/internal/models"
	"labelguard/internal/repository"
	"labelguard/internal/scan"

	"github.com/google/uuid"
)

// Operator-facing messages.
const (
	msgWaitingFirst   = "waiting for first scan"
	msgWaitingSecond  = "waiting for second scan"
	msgApproved       = "APPROVED - codes match"
	msgRejected       = "REJECTED - codes differ"
	msgCodeUsed       = "code already used"
	msgInvalidFirst   = "invalid first code format"
	msgInvalidSecond  = "invalid second code format"
	msgInvalidCompare = "invalid format detected"
	msgBlocked        = "system blocked, manual reset required"
)

// HealDelay is how long a malformed first scan stays on screen before the
// machine resets itself.
const HealDelay = 2000 * time.Millisecond

const subscriberBuffer = 1

// AudioPlayer is the audio feedback device. Calls must not block.
type AudioPlayer interface {
	PlaySuccess()
	PlayWarning()
	PlayError() // starts the repeating alarm
	StopAlarm()
}

// LineInterlock mirrors the current outcome to line equipment.
type LineInterlock interface {
	Signal(outcome models.Outcome)
}

// Persistence is the fire-and-forget side of storage.
type Persistence interface {
	HistorySaver
	SaveConfig(cfg models.ValidationConfig)
	Record(event models.AuditEvent)
}

// MachineDeps are the Machine's collaborators. Audio and Interlock may be nil.
type MachineDeps struct {
	Store     repository.Store
	Persist   Persistence
	Audio     AudioPlayer
	Interlock LineInterlock
	Clock     Clock
	Defaults  models.ValidationConfig
}

// Machine is the dual-scan validation state machine. All state is owned by
// the goroutine running Run; public methods post closures to it and wait.
type Machine struct {
	store    repository.Store
	persist  Persistence
	audio    AudioPlayer
	line     LineInterlock
	clock    Clock
	defaults models.ValidationConfig
	log      *logger.Logger

	events chan func()
	ready  chan struct{}
	done   chan struct{}

	// loop-owned
	cfg         models.ValidationConfig
	ledger      *Ledger
	dedup       *scan.DedupCache
	phase       models.Phase
	outcome     models.Outcome
	message     string
	serial1     string
	serial2     string
	resultID    string // ledger entry of the finished cycle, if any
	timer       Timer
	timerSeq    uint64
	autoResetAt *time.Time
	updatedAt   time.Time

	subsMu sync.Mutex
	subs   map[chan models.Snapshot]struct{}
}

func NewMachine(deps MachineDeps, log *logger.Logger) *Machine {
	if log == nil {
		log = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Persist == nil {
		deps.Persist = discardPersistence{}
	}
	if deps.Audio == nil {
		deps.Audio = silentAudio{}
	}
	if deps.Interlock == nil {
		deps.Interlock = noInterlock{}
	}
	m := &Machine{
		store:    deps.Store,
		persist:  deps.Persist,
		audio:    deps.Audio,
		line:     deps.Interlock,
		clock:    deps.Clock,
		defaults: deps.Defaults,
		log:      log,
		events:   make(chan func()),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		cfg:      deps.Defaults,
		dedup:    scan.NewDedupCache(),
		phase:    models.PhaseIdle,
		outcome:  models.OutcomeWaiting,
		message:  msgWaitingFirst,
		subs:     make(map[chan models.Snapshot]struct{}),
	}
	m.ledger = NewLedger(deps.Persist)
	return m
}

// Run loads config and history, then processes events until ctx is done.
// Operations block until the initial load has finished. Run must be called once.
func (m *Machine) Run(ctx context.Context) {
	defer close(m.done)

	m.load(ctx)
	m.updatedAt = m.clock.Now()
	m.line.Signal(m.outcome)
	m.publish()
	close(m.ready)
	m.log.Infow("validation_machine_started", "history", m.ledger.Len(), "auto_reset_seconds", m.cfg.AutoResetSeconds)

	for {
		select {
		case <-ctx.Done():
			m.cancelTimer()
			m.audio.StopAlarm()
			m.log.Infow("validation_machine_stopped")
			return
		case fn := <-m.events:
			fn()
		}
	}
}

func (m *Machine) load(ctx context.Context) {
	if m.store == nil {
		return
	}
	cfg, err := m.store.LoadConfig(ctx)
	if err != nil {
		m.log.Warnw("config_load_failed_using_defaults", "err", err)
		cfg = m.defaults
	} else if err := ValidateConfig(cfg); err != nil {
		m.log.Warnw("stored_config_invalid_using_defaults", "err", err, "auto_reset_seconds", cfg.AutoResetSeconds)
		cfg = m.defaults
	}
	m.cfg = cfg

	history, err := m.store.LoadHistory(ctx)
	if err != nil {
		m.log.Warnw("history_load_failed_starting_empty", "err", err)
		history = nil
	}
	m.ledger.Load(history)
}

// Ready is closed once the initial load has completed.
func (m *Machine) Ready() <-chan struct{} { return m.ready }

// Done is closed once Run has returned.
func (m *Machine) Done() <-chan struct{} { return m.done }

// do runs fn on the loop and waits for it to finish.
func (m *Machine) do(ctx context.Context, fn func()) error {
	select {
	case <-m.ready:
	case <-m.done:
		return ErrMachineStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	finished := make(chan struct{})
	select {
	case m.events <- func() { fn(); close(finished) }:
	case <-m.done:
		return ErrMachineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// post enqueues fn without waiting; used by timer callbacks.
func (m *Machine) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.done:
	}
}

// Scan feeds one complete token into the machine.
func (m *Machine) Scan(ctx context.Context, raw string) (models.Snapshot, error) {
	var (
		snap    models.Snapshot
		scanErr error
	)
	err := m.do(ctx, func() {
		scanErr = m.handleScan(raw)
		snap = m.snapshot()
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return snap, scanErr
}

// Confirm acknowledges a rejected validation, silencing the alarm and
// blocking the station until reset.
func (m *Machine) Confirm(ctx context.Context) (models.Snapshot, error) {
	var (
		snap       models.Snapshot
		confirmErr error
	)
	err := m.do(ctx, func() {
		confirmErr = m.handleConfirm()
		snap = m.snapshot()
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return snap, confirmErr
}

// Reset returns the machine to idle from any phase.
func (m *Machine) Reset(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := m.do(ctx, func() {
		m.fullReset(true)
		snap = m.snapshot()
	})
	return snap, err
}

func (m *Machine) State(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := m.do(ctx, func() { snap = m.snapshot() })
	return snap, err
}

// History returns the ledger, most recent first.
func (m *Machine) History(ctx context.Context) ([]models.ValidationResult, error) {
	var out []models.ValidationResult
	err := m.do(ctx, func() { out = m.ledger.Entries() })
	return out, err
}

// ClearHistory empties the ledger, which also forgets every used code.
func (m *Machine) ClearHistory(ctx context.Context) error {
	return m.do(ctx, func() {
		n := m.ledger.Len()
		m.ledger.Clear()
		m.record(models.AuditHistoryClear, "validation history cleared", map[string]any{"entries": n})
	})
}

func (m *Machine) Config(ctx context.Context) (models.ValidationConfig, error) {
	var cfg models.ValidationConfig
	err := m.do(ctx, func() { cfg = m.cfg })
	return cfg, err
}

// UpdateConfig applies cfg from the next validation on.
func (m *Machine) UpdateConfig(ctx context.Context, cfg models.ValidationConfig) (models.ValidationConfig, error) {
	if err := ValidateConfig(cfg); err != nil {
		return models.ValidationConfig{}, err
	}
	err := m.do(ctx, func() {
		prev := m.cfg
		m.cfg = cfg
		m.persist.SaveConfig(cfg)
		m.record(models.AuditConfigChange, "validation config updated", map[string]any{
			"auto_reset_seconds": cfg.AutoResetSeconds,
			"sound_enabled":      cfg.SoundEnabled,
			"previous_seconds":   prev.AutoResetSeconds,
		})
		if !cfg.SoundEnabled {
			m.audio.StopAlarm()
		}
	})
	if err != nil {
		return models.ValidationConfig{}, err
	}
	return cfg, nil
}

// Subscribe returns a channel receiving the latest snapshot after every
// transition. Slow readers only see the most recent one. Call cancel to stop.
func (m *Machine) Subscribe() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, subscriberBuffer)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, ch)
			m.subsMu.Unlock()
		})
	}
}

// ---- loop-side handlers ----

func (m *Machine) handleScan(raw string) error {
	switch m.phase {
	case models.PhaseAwaitingConfirmation, models.PhaseBlocked, models.PhaseHalted:
		m.log.Debugw("scan_ignored", "phase", m.phase)
		return ErrScanningLocked
	}

	code := scan.Normalize(raw)
	if m.dedup.IsDuplicate(code, m.clock.Now()) {
		m.log.Debugw("scan_duplicate_dropped", "code", code)
		return ErrDuplicateScan
	}

	if m.phase == models.PhaseCompleted {
		// next cycle starts before the auto-reset fired
		m.cancelTimer()
		m.serial1, m.serial2, m.resultID = "", "", ""
		m.phase = models.PhaseIdle
	}

	switch m.phase {
	case models.PhaseIdle:
		m.scanFirst(raw, code)
	case models.PhaseSlot1Filled:
		m.scanSecond(raw, code)
	}
	return nil
}

func (m *Machine) scanFirst(raw, code string) {
	if !scan.ValidFormat(code) {
		m.transition(models.OutcomeError, msgInvalidFirst)
		m.playWarning()
		m.line.Signal(models.OutcomeError)
		m.schedule(HealDelay, func() { m.fullReset(false) })
		return
	}
	m.cancelTimer()

	if m.ledger.WasCodeUsed(code) {
		m.transition(models.OutcomeError, msgCodeUsed)
		m.playWarning()
		m.line.Signal(models.OutcomeError)
		return
	}

	m.serial1 = raw
	m.phase = models.PhaseSlot1Filled
	m.transition(models.OutcomeWaiting, msgWaitingSecond)
	m.line.Signal(models.OutcomeWaiting)
}

func (m *Machine) scanSecond(raw, code string) {
	if !scan.ValidFormat(code) {
		m.transition(models.OutcomeError, msgInvalidSecond)
		m.playWarning()
		m.line.Signal(models.OutcomeError)
		return
	}
	if m.ledger.WasCodeUsed(code) {
		m.transition(models.OutcomeError, msgCodeUsed)
		m.playWarning()
		m.line.Signal(models.OutcomeError)
		return
	}
	m.serial2 = raw
	m.compare()
}

// compare finishes a cycle with both slots filled.
func (m *Machine) compare() {
	cfg := m.cfg
	norm1, norm2 := scan.Normalize(m.serial1), scan.Normalize(m.serial2)

	if !scan.ValidFormat(norm1) || !scan.ValidFormat(norm2) {
		m.cancelTimer()
		m.phase = models.PhaseHalted
		m.transition(models.OutcomeError, msgInvalidCompare)
		m.playWarning()
		m.line.Signal(models.OutcomeError)
		return
	}

	m.cancelTimer()
	outcome, msg := models.OutcomeRejected, msgRejected
	if norm1 == norm2 {
		outcome, msg = models.OutcomeApproved, msgApproved
	}

	if outcome == models.OutcomeApproved {
		m.phase = models.PhaseCompleted
	} else {
		m.phase = models.PhaseAwaitingConfirmation
	}
	m.transition(outcome, msg)

	res := models.ValidationResult{
		ID:             uuid.NewString(),
		Serial1:        m.serial1,
		Serial2:        m.serial2,
		State:          outcome,
		Message:        msg,
		Timestamp:      m.updatedAt.UTC(),
		ProductionLine: cfg.ProductionLine,
		ProductModel:   cfg.ProductModel,
		Voltage:        cfg.Voltage,
		StationID:      cfg.StationID,
		LineID:         cfg.LineID,
	}
	m.ledger.Append(res)
	m.resultID = res.ID

	auditType := models.AuditApproved
	if outcome == models.OutcomeRejected {
		auditType = models.AuditRejected
	}
	m.record(auditType, msg, map[string]any{
		"result_id": res.ID,
		"serial1":   res.Serial1,
		"serial2":   res.Serial2,
	})

	if outcome == models.OutcomeApproved {
		if cfg.SoundEnabled {
			m.audio.PlaySuccess()
		}
		m.line.Signal(models.OutcomeApproved)
		m.schedule(cfg.AutoResetDelay(), func() { m.fullReset(false) })
		return
	}

	if cfg.SoundEnabled {
		m.audio.PlayError()
	}
	m.line.Signal(models.OutcomeRejected)
}

func (m *Machine) handleConfirm() error {
	if m.phase != models.PhaseAwaitingConfirmation {
		return ErrNothingToConfirm
	}
	m.audio.StopAlarm()
	m.phase = models.PhaseBlocked
	m.transition(models.OutcomeBlocked, msgBlocked)
	m.record(models.AuditConfirmed, "rejection confirmed by operator", map[string]any{
		"result_id": m.resultID,
		"serial1":   m.serial1,
		"serial2":   m.serial2,
	})
	m.line.Signal(models.OutcomeBlocked)
	return nil
}

// fullReset clears slots, dedup cache, timers and the alarm. manual marks
// operator-initiated resets, which are audited.
func (m *Machine) fullReset(manual bool) {
	from, resultID := m.phase, m.resultID
	m.cancelTimer()
	m.serial1, m.serial2, m.resultID = "", "", ""
	m.dedup.Reset()
	m.audio.StopAlarm()
	m.phase = models.PhaseIdle
	m.transition(models.OutcomeWaiting, msgWaitingFirst)
	if manual {
		meta := map[string]any{"from_phase": string(from)}
		if resultID != "" {
			meta["result_id"] = resultID
		}
		m.record(models.AuditReset, "manual reset", meta)
	}
	m.line.Signal(models.OutcomeWaiting)
}

// transition sets outcome and message and notifies subscribers.
func (m *Machine) transition(outcome models.Outcome, msg string) {
	m.outcome = outcome
	m.message = msg
	m.updatedAt = m.clock.Now()
	m.publish()
}

func (m *Machine) playWarning() {
	if m.cfg.SoundEnabled {
		m.audio.PlayWarning()
	}
}

// schedule replaces any pending timer. The callback runs on the loop and is
// dropped if another timer was scheduled or cancelled in the meantime.
func (m *Machine) schedule(d time.Duration, fn func()) {
	m.cancelTimer()
	m.timerSeq++
	seq := m.timerSeq
	at := m.clock.Now().Add(d)
	m.autoResetAt = &at
	m.timer = m.clock.AfterFunc(d, func() {
		m.post(func() {
			if seq != m.timerSeq || m.timer == nil {
				return
			}
			m.timer = nil
			m.autoResetAt = nil
			fn()
		})
	})
	m.publish()
}

func (m *Machine) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
	m.autoResetAt = nil
}

func (m *Machine) record(typ, desc string, meta map[string]any) {
	m.persist.Record(models.AuditEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  m.clock.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
}

func (m *Machine) snapshot() models.Snapshot {
	s := models.Snapshot{
		State:                m.outcome,
		Phase:                m.phase,
		Message:              m.message,
		Serial1:              m.serial1,
		Serial2:              m.serial2,
		AwaitingConfirmation: m.phase == models.PhaseAwaitingConfirmation,
		UpdatedAt:            m.updatedAt,
	}
	if m.autoResetAt != nil {
		at := *m.autoResetAt
		s.AutoResetAt = &at
	}
	return s
}

func (m *Machine) publish() {
	snap := m.snapshot()
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

type discardPersistence struct{}

func (discardPersistence) SaveHistory([]models.ValidationResult) {}
func (discardPersistence) SaveConfig(models.ValidationConfig)     {}
func (discardPersistence) Record(models.AuditEvent)               {}

type silentAudio struct{}

func (silentAudio) PlaySuccess() {}
func (silentAudio) PlayWarning() {}
func (silentAudio) PlayError()   {}
func (silentAudio) StopAlarm()   {}

type noInterlock struct{}

func (noInterlock) Signal(models.Outcome) {}
