package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meater_sync/internal/models"
)

// ErrDeviceNotFound is returned by Load when no row exists for the id.
var ErrDeviceNotFound = errors.New("device not found")

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

var _ StateRepo = (*StateSQLite)(nil)

const (
	upsertStateSQL = `
		INSERT INTO device_state (id, display_name, internal_c, ambient_c, cook_state, cook_name,
			target_c, peak_c, elapsed_s, remaining_s, cook_refresh, external, firmware, refresh_s, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name=excluded.display_name,
			internal_c=excluded.internal_c,
			ambient_c=excluded.ambient_c,
			cook_state=excluded.cook_state,
			cook_name=excluded.cook_name,
			target_c=excluded.target_c,
			peak_c=excluded.peak_c,
			elapsed_s=excluded.elapsed_s,
			remaining_s=excluded.remaining_s,
			cook_refresh=excluded.cook_refresh,
			external=excluded.external,
			firmware=excluded.firmware,
			refresh_s=excluded.refresh_s,
			updated_at=excluded.updated_at
	`

	stateColumns = `id, display_name, internal_c, ambient_c, cook_state, cook_name,
			target_c, peak_c, elapsed_s, remaining_s, cook_refresh, external, firmware, refresh_s, updated_at`

	selectStateSQL     = `SELECT ` + stateColumns + ` FROM device_state WHERE id=?`
	selectAllStatesSQL = `SELECT ` + stateColumns + ` FROM device_state ORDER BY id ASC`
	deleteStateSQL     = `DELETE FROM device_state WHERE id=?`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (models.DeviceState, error) {
	var s models.DeviceState
	err := row.Scan(
		&s.ID,
		&s.DisplayName,
		&s.InternalTempC,
		&s.AmbientTempC,
		&s.CookState,
		&s.CookName,
		&s.TargetTempC,
		&s.PeakTempC,
		&s.ElapsedSeconds,
		&s.RemainingSeconds,
		&s.CookRefresh,
		&s.External,
		&s.Firmware,
		&s.RefreshRateSeconds,
		&s.UpdatedAt,
	)
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, err
}

// Save inserts or replaces the row for state.ID.
func (r *StateSQLite) Save(ctx context.Context, state models.DeviceState) error {
	if state.ID == "" {
		return errors.New("save device state: empty id")
	}
	// ensure UpdatedAt is always persisted as UTC; set if zero
	tsUTC := state.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertStateSQL,
		state.ID,
		state.DisplayName,
		state.InternalTempC,
		state.AmbientTempC,
		state.CookState,
		state.CookName,
		state.TargetTempC,
		state.PeakTempC,
		state.ElapsedSeconds,
		state.RemainingSeconds,
		state.CookRefresh,
		state.External,
		state.Firmware,
		state.RefreshRateSeconds,
		tsUTC,
	)
	if err != nil {
		return fmt.Errorf("save device state %q: %w", state.ID, err)
	}
	return nil
}

// Load fetches the row for id.
func (r *StateSQLite) Load(ctx context.Context, id string) (models.DeviceState, error) {
	s, err := scanState(r.db.QueryRowContext(ctx, selectStateSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DeviceState{}, ErrDeviceNotFound
		}
		return models.DeviceState{}, fmt.Errorf("load device state %q: %w", id, err)
	}
	return s, nil
}

// List returns every stored device ordered by id.
func (r *StateSQLite) List(ctx context.Context) ([]models.DeviceState, error) {
	rows, err := r.db.QueryContext(ctx, selectAllStatesSQL)
	if err != nil {
		return nil, fmt.Errorf("list device states: %w", err)
	}
	defer rows.Close()

	out := make([]models.DeviceState, 0, 4)
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device state: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the row for id. Deleting a missing row is not an error.
func (r *StateSQLite) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, deleteStateSQL, id); err != nil {
		return fmt.Errorf("delete device state %q: %w", id, err)
	}
	return nil
}
