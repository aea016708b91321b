package service

import (
	"context"
	"sync"
	"time"

	"labelguard/internal/logger"
	"labelguard/internal/models"
	"labelguard/internal/repository"
)

const (
	auditQueueSize = 256
	flushTimeout   = 5 * time.Second
)

// Persister writes the machine's state in the background. History and
// config saves are coalesced so only the latest value is written; audit
// events are queued and dropped with a warning if the queue is full.
type Persister struct {
	store  repository.Store
	events repository.EventRepo // nil disables the audit trail
	log    *logger.Logger

	mu         sync.Mutex
	history    []models.ValidationResult
	hasHistory bool
	config     *models.ValidationConfig

	audit chan models.AuditEvent
	wake  chan struct{}
}

var _ Persistence = (*Persister)(nil)

func NewPersister(store repository.Store, events repository.EventRepo, log *logger.Logger) *Persister {
	if log == nil {
		log = logger.Nop()
	}
	return &Persister{
		store:  store,
		events: events,
		log:    log,
		audit:  make(chan models.AuditEvent, auditQueueSize),
		wake:   make(chan struct{}, 1),
	}
}

func (p *Persister) SaveHistory(history []models.ValidationResult) {
	cp := append([]models.ValidationResult(nil), history...)
	p.mu.Lock()
	p.history, p.hasHistory = cp, true
	p.mu.Unlock()
	p.signal()
}

func (p *Persister) SaveConfig(cfg models.ValidationConfig) {
	p.mu.Lock()
	p.config = &cfg
	p.mu.Unlock()
	p.signal()
}

func (p *Persister) Record(event models.AuditEvent) {
	if p.events == nil {
		return
	}
	select {
	case p.audit <- event:
	default:
		p.log.Warnw("audit_queue_full_event_dropped", "type", event.Type)
	}
}

func (p *Persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes pending work until ctx is done, then flushes what is left.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			p.drainAudit(fctx)
			p.flush(fctx)
			cancel()
			return
		case <-p.wake:
			p.flush(ctx)
		case ev := <-p.audit:
			p.appendEvent(ctx, ev)
		}
	}
}

func (p *Persister) flush(ctx context.Context) {
	p.mu.Lock()
	history, hasHistory := p.history, p.hasHistory
	cfg := p.config
	p.history, p.hasHistory, p.config = nil, false, nil
	p.mu.Unlock()

	if cfg != nil {
		if err := p.store.SaveConfig(ctx, *cfg); err != nil {
			p.log.Errorw("config_save_failed", "err", err)
		}
	}
	if hasHistory {
		if err := p.store.SaveHistory(ctx, history); err != nil {
			p.log.Errorw("history_save_failed", "err", err, "entries", len(history))
		}
	}
}

func (p *Persister) drainAudit(ctx context.Context) {
	for {
		select {
		case ev := <-p.audit:
			p.appendEvent(ctx, ev)
		default:
			return
		}
	}
}

func (p *Persister) appendEvent(ctx context.Context, ev models.AuditEvent) {
	if err := p.events.Append(ctx, ev); err != nil {
		p.log.Warnw("audit_append_failed", "type", ev.Type, "err", err)
	}
}
