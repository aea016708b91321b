package repository

import (
	"context"
	"database/sql"
	"time"

	"labelguard/internal/models"
)

// Authorization stores supervisor accounts.
type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.Supervisor, error)
	Count() (int, error)
}

// ConfigRepo persists the single ValidationConfig. found is false when
// nothing has been saved yet.
type ConfigRepo interface {
	Load(ctx context.Context) (cfg models.ValidationConfig, found bool, err error)
	Save(ctx context.Context, cfg models.ValidationConfig) error
}

// HistoryRepo persists the ledger as a whole list, most recent first.
type HistoryRepo interface {
	Load(ctx context.Context) ([]models.ValidationResult, error)
	Save(ctx context.Context, history []models.ValidationResult) error
}

// EventRepo is the append-only audit trail.
type EventRepo interface {
	Append(ctx context.Context, e models.AuditEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.AuditEvent, error)
}

// Store is the persistence contract used by the validation machine.
type Store interface {
	LoadConfig(ctx context.Context) (models.ValidationConfig, error)
	SaveConfig(ctx context.Context, cfg models.ValidationConfig) error
	LoadHistory(ctx context.Context) ([]models.ValidationResult, error)
	SaveHistory(ctx context.Context, history []models.ValidationResult) error
}

type Repository struct {
	Config    ConfigRepo
	History   HistoryRepo
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Config:    NewConfigSQLite(db),
		History:   NewHistorySQLite(db),
		EventRepo: NewAuditSQLite(db),
		Auth:      NewSupervisorRepository(db),
	}
}

// toNull maps an optional string to a nullable column value.
func toNull(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// fromNull is the inverse of toNull.
func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
