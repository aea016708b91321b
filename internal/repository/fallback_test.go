package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"labelguard/internal/models"
)

type stubConfigRepo struct {
	cfg     models.ValidationConfig
	found   bool
	loadErr error
	saveErr error
	saved   int
}

func (s *stubConfigRepo) Load(context.Context) (models.ValidationConfig, bool, error) {
	return s.cfg, s.found, s.loadErr
}

func (s *stubConfigRepo) Save(_ context.Context, cfg models.ValidationConfig) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved++
	s.cfg, s.found = cfg, true
	return nil
}

type stubHistoryRepo struct {
	list    []models.ValidationResult
	loadErr error
	saveErr error
}

func (s *stubHistoryRepo) Load(context.Context) ([]models.ValidationResult, error) {
	return s.list, s.loadErr
}

func (s *stubHistoryRepo) Save(_ context.Context, h []models.ValidationResult) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.list = h
	return nil
}

var defaultCfg = models.ValidationConfig{AutoResetSeconds: 3, SoundEnabled: true}

func TestFallbackStore_LoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		primary  ConfigRepo
		seed     *models.ValidationConfig
		wantSecs float64
	}{
		{name: "primary hit", primary: &stubConfigRepo{cfg: models.ValidationConfig{AutoResetSeconds: 7}, found: true}, wantSecs: 7},
		{name: "primary empty uses defaults", primary: &stubConfigRepo{}, wantSecs: 3},
		{name: "primary error uses fallback", primary: &stubConfigRepo{loadErr: errors.New("io")}, seed: &models.ValidationConfig{AutoResetSeconds: 9}, wantSecs: 9},
		{name: "primary error empty fallback uses defaults", primary: &stubConfigRepo{loadErr: errors.New("io")}, wantSecs: 3},
		{name: "no primary", primary: nil, seed: &models.ValidationConfig{AutoResetSeconds: 1.5}, wantSecs: 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := NewSimpleStore("")
			if tt.seed != nil {
				if err := fb.Config().Save(ctx(t), *tt.seed); err != nil {
					t.Fatal(err)
				}
			}
			s := NewFallbackStore(tt.primary, nil, fb, defaultCfg, nil)
			got, err := s.LoadConfig(ctx(t))
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}
			if got.AutoResetSeconds != tt.wantSecs {
				t.Fatalf("want %v seconds, got %v", tt.wantSecs, got.AutoResetSeconds)
			}
		})
	}
}

func TestFallbackStore_SaveConfigFallsBack(t *testing.T) {
	primary := &stubConfigRepo{saveErr: errors.New("readonly")}
	fb := NewSimpleStore("")
	s := NewFallbackStore(primary, nil, fb, defaultCfg, nil)

	if err := s.SaveConfig(ctx(t), models.ValidationConfig{AutoResetSeconds: 6}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, found, _ := fb.Config().Load(ctx(t))
	if !found || got.AutoResetSeconds != 6 {
		t.Fatalf("fallback did not receive config: %+v found=%v", got, found)
	}
}

func TestFallbackStore_SaveConfigPrimaryOnly(t *testing.T) {
	primary := &stubConfigRepo{}
	fb := NewSimpleStore("")
	s := NewFallbackStore(primary, nil, fb, defaultCfg, nil)

	if err := s.SaveConfig(ctx(t), models.ValidationConfig{AutoResetSeconds: 4}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if primary.saved != 1 {
		t.Fatalf("primary save count = %d", primary.saved)
	}
	if _, found, _ := fb.Config().Load(ctx(t)); found {
		t.Fatalf("fallback should stay empty while primary works")
	}
}

func TestFallbackStore_History(t *testing.T) {
	primary := &stubHistoryRepo{loadErr: errors.New("gone"), saveErr: errors.New("gone")}
	fb := NewSimpleStore("")
	s := NewFallbackStore(nil, primary, fb, defaultCfg, nil)

	entries := []models.ValidationResult{{ID: "a"}, {ID: "b"}}
	if err := s.SaveHistory(ctx(t), entries); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	got, err := s.LoadHistory(ctx(t))
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func TestFallbackStore_LoadHistoryPrefersNewer(t *testing.T) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	older := []models.ValidationResult{{ID: "old", Timestamp: base}}
	newer := []models.ValidationResult{{ID: "new", Timestamp: base.Add(time.Minute)}, {ID: "old", Timestamp: base}}

	tests := []struct {
		name     string
		primary  []models.ValidationResult
		fallback []models.ValidationResult
		wantID   string
		wantLen  int
	}{
		{name: "fallback newer after failed write", primary: older, fallback: newer, wantID: "new", wantLen: 2},
		{name: "primary newer than leftovers", primary: newer, fallback: older, wantID: "new", wantLen: 2},
		{name: "same newest keeps primary", primary: older, fallback: []models.ValidationResult{{ID: "copy", Timestamp: base}}, wantID: "old", wantLen: 1},
		{name: "empty fallback", primary: older, wantID: "old", wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := NewSimpleStore("")
			if tt.fallback != nil {
				if err := fb.History().Save(ctx(t), tt.fallback); err != nil {
					t.Fatal(err)
				}
			}
			s := NewFallbackStore(nil, &stubHistoryRepo{list: tt.primary}, fb, defaultCfg, nil)

			got, err := s.LoadHistory(ctx(t))
			if err != nil {
				t.Fatalf("LoadHistory: %v", err)
			}
			if len(got) != tt.wantLen || got[0].ID != tt.wantID {
				t.Fatalf("want %d entries starting with %q, got %+v", tt.wantLen, tt.wantID, got)
			}
		})
	}
}

func TestFallbackStore_TransientSaveFailureSurvivesRestart(t *testing.T) {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	primary := &stubHistoryRepo{list: []models.ValidationResult{{ID: "a", Timestamp: base}}}
	fb := NewSimpleStore("")
	s := NewFallbackStore(nil, primary, fb, defaultCfg, nil)

	primary.saveErr = errors.New("database is locked")
	latest := []models.ValidationResult{{ID: "b", Timestamp: base.Add(time.Second)}, {ID: "a", Timestamp: base}}
	if err := s.SaveHistory(ctx(t), latest); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	// A new process over the same storage.
	restarted := NewFallbackStore(nil, primary, fb, defaultCfg, nil)
	got, err := restarted.LoadHistory(ctx(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Fatalf("newer fallback history lost on restart: %+v", got)
	}

	// Once the primary recovers, the fallback copy is emptied so a later
	// clear is not undone by it.
	primary.saveErr = nil
	if err := restarted.SaveHistory(ctx(t), nil); err != nil {
		t.Fatal(err)
	}
	left, _ := fb.History().Load(ctx(t))
	if len(left) != 0 {
		t.Fatalf("fallback should be emptied after recovery, got %+v", left)
	}
	again := NewFallbackStore(nil, primary, fb, defaultCfg, nil)
	if got, _ := again.LoadHistory(ctx(t)); len(got) != 0 {
		t.Fatalf("cleared history came back: %+v", got)
	}
}
