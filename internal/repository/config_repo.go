package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"labelguard/internal/models"
)

type ConfigSQLite struct {
	db *sql.DB
}

func NewConfigSQLite(db *sql.DB) *ConfigSQLite {
	return &ConfigSQLite{db: db}
}

var _ ConfigRepo = (*ConfigSQLite)(nil)

const (
	configRowID = 1

	upsertConfigSQL = `
		INSERT INTO validation_config (id, auto_reset_seconds, sound_enabled, station_id, line_id, production_line, product_model, voltage, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			auto_reset_seconds=excluded.auto_reset_seconds,
			sound_enabled=excluded.sound_enabled,
			station_id=excluded.station_id,
			line_id=excluded.line_id,
			production_line=excluded.production_line,
			product_model=excluded.product_model,
			voltage=excluded.voltage,
			updated_at=excluded.updated_at
	`

	selectConfigSQL = `
		SELECT auto_reset_seconds, sound_enabled, station_id, line_id, production_line, product_model, voltage
		FROM validation_config WHERE id=?
	`
)

// Save upserts the single config row.
func (r *ConfigSQLite) Save(ctx context.Context, cfg models.ValidationConfig) error {
	_, err := r.db.ExecContext(ctx, upsertConfigSQL,
		configRowID,
		cfg.AutoResetSeconds,
		cfg.SoundEnabled,
		toNull(cfg.StationID),
		toNull(cfg.LineID),
		toNull(cfg.ProductionLine),
		toNull(cfg.ProductModel),
		toNull(cfg.Voltage),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save validation config: %w", err)
	}
	return nil
}

// Load returns the stored config; found is false when the row is missing.
func (r *ConfigSQLite) Load(ctx context.Context) (models.ValidationConfig, bool, error) {
	var (
		cfg                                                   models.ValidationConfig
		stationID, lineID, productionLine, productModel, volt sql.NullString
	)
	err := r.db.QueryRowContext(ctx, selectConfigSQL, configRowID).Scan(
		&cfg.AutoResetSeconds,
		&cfg.SoundEnabled,
		&stationID,
		&lineID,
		&productionLine,
		&productModel,
		&volt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ValidationConfig{}, false, nil
		}
		return models.ValidationConfig{}, false, fmt.Errorf("load validation config: %w", err)
	}

	cfg.StationID = fromNull(stationID)
	cfg.LineID = fromNull(lineID)
	cfg.ProductionLine = fromNull(productionLine)
	cfg.ProductModel = fromNull(productModel)
	cfg.Voltage = fromNull(volt)
	return cfg, true, nil
}
