package service

import (
	"context"
	"math"
	"strings"

	"labelguard/internal/models"
)

const (
	MinAutoResetSeconds  = 1.0
	MaxAutoResetSeconds  = 10.0
	AutoResetStepSeconds = 0.5
)

// ValidateConfig checks the operator-editable bounds.
func ValidateConfig(cfg models.ValidationConfig) error {
	s := cfg.AutoResetSeconds
	if math.IsNaN(s) || s < MinAutoResetSeconds || s > MaxAutoResetSeconds {
		return ErrInvalidAutoReset
	}
	if steps := s / AutoResetStepSeconds; steps != math.Trunc(steps) {
		return ErrInvalidAutoReset
	}
	return nil
}

// normalizeConfig trims the optional labels; blank ones become nil.
func normalizeConfig(cfg models.ValidationConfig) models.ValidationConfig {
	for _, p := range []**string{&cfg.StationID, &cfg.LineID, &cfg.ProductionLine, &cfg.ProductModel, &cfg.Voltage} {
		if *p == nil {
			continue
		}
		v := strings.TrimSpace(**p)
		if v == "" {
			*p = nil
			continue
		}
		*p = &v
	}
	return cfg
}

type configMachine interface {
	Config(ctx context.Context) (models.ValidationConfig, error)
	UpdateConfig(ctx context.Context, cfg models.ValidationConfig) (models.ValidationConfig, error)
}

type ConfigService struct {
	machine configMachine
}

func NewConfigService(m configMachine) *ConfigService {
	return &ConfigService{machine: m}
}

func (s *ConfigService) Get(ctx context.Context) (models.ValidationConfig, error) {
	return s.machine.Config(ctx)
}

// Update validates and applies cfg. It affects the next validation only.
func (s *ConfigService) Update(ctx context.Context, cfg models.ValidationConfig) (models.ValidationConfig, error) {
	cfg = normalizeConfig(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return models.ValidationConfig{}, err
	}
	return s.machine.UpdateConfig(ctx, cfg)
}
