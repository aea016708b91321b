package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"labelguard/internal/models"
)

// SimpleStore keeps config and history in memory and, when a path is set,
// mirrors them to a JSON file. It is the fallback when SQLite is unusable.
type SimpleStore struct {
	path string

	mu      sync.Mutex
	loaded  bool
	payload simplePayload
}

type simplePayload struct {
	Config  *models.ValidationConfig  `json:"config,omitempty"`
	History []models.ValidationResult `json:"history"`
}

// NewSimpleStore returns a store backed by path. An empty path keeps
// everything in memory.
func NewSimpleStore(path string) *SimpleStore {
	return &SimpleStore{path: strings.TrimSpace(path)}
}

var (
	_ ConfigRepo  = (*SimpleConfig)(nil)
	_ HistoryRepo = (*SimpleHistory)(nil)
)

// SimpleConfig and SimpleHistory expose a SimpleStore through the repo interfaces.
type (
	SimpleConfig  struct{ s *SimpleStore }
	SimpleHistory struct{ s *SimpleStore }
)

func (s *SimpleStore) Config() *SimpleConfig   { return &SimpleConfig{s: s} }
func (s *SimpleStore) History() *SimpleHistory { return &SimpleHistory{s: s} }

func (c *SimpleConfig) Load(_ context.Context) (models.ValidationConfig, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if err := c.s.readLocked(); err != nil {
		return models.ValidationConfig{}, false, err
	}
	if c.s.payload.Config == nil {
		return models.ValidationConfig{}, false, nil
	}
	return *c.s.payload.Config, true, nil
}

func (c *SimpleConfig) Save(_ context.Context, cfg models.ValidationConfig) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if err := c.s.readLocked(); err != nil {
		// unreadable file is overwritten rather than blocking saves
		c.s.payload = simplePayload{}
	}
	c.s.payload.Config = &cfg
	return c.s.writeLocked()
}

func (h *SimpleHistory) Load(_ context.Context) ([]models.ValidationResult, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	if err := h.s.readLocked(); err != nil {
		return nil, err
	}
	out := make([]models.ValidationResult, len(h.s.payload.History))
	copy(out, h.s.payload.History)
	return out, nil
}

func (h *SimpleHistory) Save(_ context.Context, history []models.ValidationResult) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	if err := h.s.readLocked(); err != nil {
		h.s.payload = simplePayload{}
	}
	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	h.s.payload.History = append([]models.ValidationResult(nil), history...)
	return h.s.writeLocked()
}

// readLocked loads the file once. A missing file is an empty store.
func (s *SimpleStore) readLocked() error {
	if s.loaded || s.path == "" {
		s.loaded = true
		return nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read fallback store: %w", err)
	}
	var p simplePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("decode fallback store: %w", err)
	}
	s.payload = p
	s.loaded = true
	return nil
}

func (s *SimpleStore) writeLocked() error {
	s.loaded = true
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir fallback store dir: %w", err)
	}
	b, err := json.Marshal(s.payload)
	if err != nil {
		return fmt.Errorf("marshal fallback store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp fallback store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename fallback store: %w", err)
	}
	return nil
}
