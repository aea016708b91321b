package service

import (
	"context"
	"io"

	"labelguard/internal/models"
	"labelguard/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
	OpenSignUp() (bool, error)
}

// Validation drives the dual-scan cycle.
type Validation interface {
	Scan(ctx context.Context, raw string) (models.Snapshot, error)
	Confirm(ctx context.Context) (models.Snapshot, error)
	Reset(ctx context.Context) (models.Snapshot, error)
	State(ctx context.Context) (models.Snapshot, error)
	Subscribe() (<-chan models.Snapshot, func())
}

// History exposes the ledger to operators and supervisors.
type History interface {
	List(ctx context.Context, f HistoryFilter) ([]models.ValidationResult, error)
	Stats(ctx context.Context) (HistoryStats, error)
	Clear(ctx context.Context) error
	Export(ctx context.Context, format string, w io.Writer) error
}

// Configuration reads and updates the operator-facing ValidationConfig.
type Configuration interface {
	Get(ctx context.Context) (models.ValidationConfig, error)
	Update(ctx context.Context, cfg models.ValidationConfig) (models.ValidationConfig, error)
}

// AuditLog exposes the append-only operator action trail.
type AuditLog interface {
	List(ctx context.Context, f LogFilter) ([]models.AuditEvent, error)
}

// Service aggregates all sub-services.
type Service struct {
	Validation
	History
	Configuration
	AuditLog
	Authorization
}

// NewService wires the machine and the repository layer. repos may be nil
// when the primary database is unavailable; audit and auth are then disabled.
func NewService(m *Machine, repos *repository.Repository, auth AuthConfig) *Service {
	var (
		events repository.EventRepo
		users  repository.Authorization
	)
	if repos != nil {
		events, users = repos.EventRepo, repos.Auth
	}
	return &Service{
		Validation:    m,
		History:       NewHistoryService(m),
		Configuration: NewConfigService(m),
		AuditLog:      NewAuditLogService(events),
		Authorization: NewAuthService(users, auth),
	}
}
