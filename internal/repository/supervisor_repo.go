package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"labelguard/internal/models"
)

type SupervisorRepository struct {
	db *sql.DB
}

func NewSupervisorRepository(db *sql.DB) *SupervisorRepository {
	return &SupervisorRepository{db: db}
}

var _ Authorization = (*SupervisorRepository)(nil)

const (
	insertSupervisorSQL           = `INSERT INTO supervisors (username, password_hash) VALUES (?, ?)`
	selectSupervisorByUsernameSQL = `SELECT id, username, password_hash FROM supervisors WHERE username = ?`
	countSupervisorsSQL           = `SELECT COUNT(*) FROM supervisors`
)

// Create inserts a supervisor and returns its ID.
func (r *SupervisorRepository) Create(username, passwordHash string) (int, error) {
	res, err := r.db.Exec(insertSupervisorSQL, username, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("insert supervisor %q: %w", username, err)
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id for supervisor %q: %w", username, err)
	}
	return int(lastID), nil
}

// GetByUsername returns (nil, nil) when no supervisor has that name.
func (r *SupervisorRepository) GetByUsername(username string) (*models.Supervisor, error) {
	var s models.Supervisor
	err := r.db.QueryRow(selectSupervisorByUsernameSQL, username).Scan(&s.ID, &s.Username, &s.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select supervisor %q: %w", username, err)
	}
	return &s, nil
}

func (r *SupervisorRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(countSupervisorsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count supervisors: %w", err)
	}
	return n, nil
}
