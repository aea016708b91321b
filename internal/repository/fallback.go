package repository

import (
	"context"
	"sync"
	"time"

	"labelguard/internal/logger"
	"labelguard/internal/models"
)

// FallbackStore implements Store on top of a primary (SQLite) pair of
// repositories, switching to a SimpleStore whenever the primary fails.
// Failures are logged, never returned, unless the fallback fails too.
type FallbackStore struct {
	config   ConfigRepo
	history  HistoryRepo
	fallback *SimpleStore
	defaults models.ValidationConfig
	log      *logger.Logger

	mu sync.Mutex
	// staleFallback is set while the fallback holds history the primary
	// has not caught up with, or leftovers from an earlier outage.
	staleFallback bool
}

var _ Store = (*FallbackStore)(nil)

// NewFallbackStore builds the store. config/history may be nil when the
// primary database could not be opened; defaults is returned by LoadConfig
// when nothing has been saved yet.
func NewFallbackStore(config ConfigRepo, history HistoryRepo, fallback *SimpleStore, defaults models.ValidationConfig, log *logger.Logger) *FallbackStore {
	if fallback == nil {
		fallback = NewSimpleStore("")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FallbackStore{
		config:   config,
		history:  history,
		fallback: fallback,
		defaults: defaults,
		log:      log,
	}
}

func (s *FallbackStore) LoadConfig(ctx context.Context) (models.ValidationConfig, error) {
	if s.config != nil {
		cfg, found, err := s.config.Load(ctx)
		if err == nil {
			if !found {
				return s.defaults, nil
			}
			return cfg, nil
		}
		s.log.Warnw("config_load_failed_using_fallback", "err", err)
	}
	cfg, found, err := s.fallback.Config().Load(ctx)
	if err != nil {
		s.log.Warnw("fallback_config_load_failed_using_defaults", "err", err)
		return s.defaults, nil
	}
	if !found {
		return s.defaults, nil
	}
	return cfg, nil
}

func (s *FallbackStore) SaveConfig(ctx context.Context, cfg models.ValidationConfig) error {
	if s.config != nil {
		err := s.config.Save(ctx, cfg)
		if err == nil {
			return nil
		}
		s.log.Warnw("config_save_failed_using_fallback", "err", err)
	}
	return s.fallback.Config().Save(ctx, cfg)
}

// LoadHistory returns whichever copy holds the most recent entry. The
// fallback wins only when it is strictly newer, which happens after the
// primary failed a write and the process stopped before it recovered.
func (s *FallbackStore) LoadHistory(ctx context.Context) ([]models.ValidationResult, error) {
	fb, fbErr := s.fallback.History().Load(ctx)
	if fbErr != nil {
		s.log.Warnw("fallback_history_load_failed", "err", fbErr)
		fb = nil
	}

	if s.history != nil {
		h, err := s.history.Load(ctx)
		if err == nil {
			s.markStale(len(fb) > 0)
			if len(fb) > 0 && newest(fb).After(newest(h)) {
				s.log.Warnw("history_fallback_newer_than_primary", "primary_entries", len(h), "fallback_entries", len(fb))
				return fb, nil
			}
			return h, nil
		}
		s.log.Warnw("history_load_failed_using_fallback", "err", err)
	}
	if fbErr != nil {
		s.log.Warnw("fallback_history_load_failed_starting_empty", "err", fbErr)
	}
	return fb, nil
}

// SaveHistory writes to the primary. On failure the ledger goes to the
// fallback; once the primary accepts a write again the fallback copy is
// emptied so it cannot shadow later clears.
func (s *FallbackStore) SaveHistory(ctx context.Context, history []models.ValidationResult) error {
	if s.history != nil {
		err := s.history.Save(ctx, history)
		if err == nil {
			if s.isStale() {
				if err := s.fallback.History().Save(ctx, nil); err != nil {
					s.log.Warnw("fallback_history_clear_failed", "err", err)
				} else {
					s.markStale(false)
				}
			}
			return nil
		}
		s.log.Warnw("history_save_failed_using_fallback", "err", err, "entries", len(history))
		s.markStale(true)
	}
	return s.fallback.History().Save(ctx, history)
}

func (s *FallbackStore) markStale(v bool) {
	s.mu.Lock()
	s.staleFallback = v
	s.mu.Unlock()
}

func (s *FallbackStore) isStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staleFallback
}

func newest(history []models.ValidationResult) time.Time {
	var t time.Time
	for _, r := range history {
		if r.Timestamp.After(t) {
			t = r.Timestamp
		}
	}
	return t
}
