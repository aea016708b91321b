package repository

import (
	"context"
	"database/sql"
	"fmt"

	"labelguard/internal/models"

	"github.com/google/uuid"
)

// MaxHistory bounds how many ledger entries are kept.
const MaxHistory = 100

type HistorySQLite struct {
	db *sql.DB
}

func NewHistorySQLite(db *sql.DB) *HistorySQLite { return &HistorySQLite{db: db} }

var _ HistoryRepo = (*HistorySQLite)(nil)

const (
	deleteHistorySQL = `DELETE FROM validation_history`

	insertHistorySQL = `
		INSERT INTO validation_history (id, position, serial1, serial2, state, message, occurred_at, production_line, product_model, voltage, station_id, line_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectHistorySQL = `
		SELECT id, serial1, serial2, state, message, occurred_at, production_line, product_model, voltage, station_id, line_id
		FROM validation_history ORDER BY position ASC LIMIT ?
	`
)

// Save replaces the stored ledger with history. Position 0 is the most
// recent entry.
func (r *HistorySQLite) Save(ctx context.Context, history []models.ValidationResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, deleteHistorySQL); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	if len(history) > MaxHistory {
		history = history[:MaxHistory]
	}
	for i, res := range history {
		id := res.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, insertHistorySQL,
			id,
			i,
			res.Serial1,
			res.Serial2,
			string(res.State),
			res.Message,
			res.Timestamp.UTC(),
			toNull(res.ProductionLine),
			toNull(res.ProductModel),
			toNull(res.Voltage),
			toNull(res.StationID),
			toNull(res.LineID),
		); err != nil {
			return fmt.Errorf("insert history entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history transaction: %w", err)
	}
	return nil
}

// Load returns the stored ledger, most recent first.
func (r *HistorySQLite) Load(ctx context.Context) ([]models.ValidationResult, error) {
	rows, err := r.db.QueryContext(ctx, selectHistorySQL, MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	out := make([]models.ValidationResult, 0, MaxHistory)
	for rows.Next() {
		var (
			res                                               models.ValidationResult
			state                                             string
			productionLine, productModel, volt, station, line sql.NullString
		)
		if err := rows.Scan(
			&res.ID,
			&res.Serial1,
			&res.Serial2,
			&state,
			&res.Message,
			&res.Timestamp,
			&productionLine,
			&productModel,
			&volt,
			&station,
			&line,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		res.State = models.Outcome(state)
		res.Timestamp = res.Timestamp.UTC()
		res.ProductionLine = fromNull(productionLine)
		res.ProductModel = fromNull(productModel)
		res.Voltage = fromNull(volt)
		res.StationID = fromNull(station)
		res.LineID = fromNull(line)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}
