package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"meater_sync/internal/models"
	"meater_sync/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stateCols = []string{
	"id", "display_name", "internal_c", "ambient_c", "cook_state", "cook_name",
	"target_c", "peak_c", "elapsed_s", "remaining_s", "cook_refresh", "external", "firmware", "refresh_s", "updated_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func sampleState() models.DeviceState {
	return models.DeviceState{
		ID:                 "abc123",
		DisplayName:        "Brisket",
		InternalTempC:      61.5,
		AmbientTempC:       110,
		CookState:          "Started",
		CookName:           "Sunday",
		TargetTempC:        93,
		PeakTempC:          62,
		ElapsedSeconds:     3600,
		RemainingSeconds:   -1,
		CookRefresh:        "ACTIVE",
		Firmware:           "1.0.5",
		RefreshRateSeconds: 1800,
	}
}

func stateArgs(s models.DeviceState, ts driver.Value) []driver.Value {
	return []driver.Value{
		s.ID, s.DisplayName, s.InternalTempC, s.AmbientTempC, s.CookState, s.CookName,
		s.TargetTempC, s.PeakTempC, s.ElapsedSeconds, s.RemainingSeconds, s.CookRefresh,
		s.External, s.Firmware, s.RefreshRateSeconds, ts,
	}
}

func TestStateSQLite_Save_SetsUTCNowWhenTimeZero(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewStateSQLite(db)
	state := sampleState()

	isUTCRecent := sqlmockArgumentFunc(func(v driver.Value) bool {
		tm, ok := v.(time.Time)
		if !ok || tm.Location() != time.UTC {
			return false
		}
		now := time.Now().UTC()
		return !tm.Before(now.Add(-5*time.Second)) && !tm.After(now.Add(5*time.Second))
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_state")).
		WithArgs(stateArgs(state, isUTCRecent)...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), state))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateSQLite_Save_ConvertsGivenTimeToUTC(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewStateSQLite(db)

	locTokyo := time.FixedZone("JST", 9*3600)
	original := time.Date(2023, 10, 5, 12, 34, 56, 0, locTokyo)
	state := sampleState()
	state.UpdatedAt = original

	isExactUTC := sqlmockArgumentFunc(func(v driver.Value) bool {
		tm, ok := v.(time.Time)
		return ok && tm.Equal(original) && tm.Location() == time.UTC
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_state")).
		WithArgs(stateArgs(state, isExactUTC)...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), state))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateSQLite_Save_Errors(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewStateSQLite(db)

	err := repo.Save(context.Background(), models.DeviceState{})
	assert.Error(t, err, "empty id must be rejected before touching the db")

	mock.ExpectExec("INSERT INTO device_state").WillReturnError(errors.New("db down"))
	err = repo.Save(context.Background(), sampleState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Contains(t, err.Error(), "abc123")
}

func TestStateSQLite_Load(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewStateSQLite(db)

	t.Run("no rows", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, display_name")).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		got, err := repo.Load(context.Background(), "missing")
		assert.ErrorIs(t, err, repository.ErrDeviceNotFound)
		assert.Equal(t, models.DeviceState{}, got)
	})

	t.Run("happy path converts to UTC", func(t *testing.T) {
		nonUTC := time.Date(2024, 2, 1, 8, 30, 0, 0, time.FixedZone("EST", -5*3600))
		rows := sqlmock.NewRows(stateCols).AddRow(
			"abc123", "Brisket", 61.5, 110.0, "Started", "Sunday",
			93.0, 62.0, 3600, -1, "ACTIVE", false, "1.0.5", 1800, nonUTC,
		)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, display_name")).
			WithArgs("abc123").
			WillReturnRows(rows)

		got, err := repo.Load(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Equal(t, "Brisket", got.DisplayName)
		assert.Equal(t, 61.5, got.InternalTempC)
		assert.Equal(t, -1, got.RemainingSeconds)
		assert.Equal(t, time.UTC, got.UpdatedAt.Location())
		assert.True(t, got.UpdatedAt.Equal(nonUTC))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStateSQLite_ListAndDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewStateSQLite(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(stateCols).
		AddRow("a", "A", 20.0, 21.0, "", "", 0.0, 0.0, 0, 0, "ACTIVE", false, "", 1800, now).
		AddRow("b", "B", 30.0, 31.0, "", "", 0.0, 0.0, 0, 0, "NOT_FOUND", true, "", 1800, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM device_state ORDER BY id ASC")).WillReturnRows(rows)

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "NOT_FOUND", got[1].CookRefresh)
	assert.True(t, got[1].External)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM device_state WHERE id=?")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "a"))

	require.NoError(t, mock.ExpectationsWereMet())
}

// Helpers

type sqlmockArgumentFunc func(v driver.Value) bool

func (f sqlmockArgumentFunc) Match(v driver.Value) bool {
	return f(v)
}
