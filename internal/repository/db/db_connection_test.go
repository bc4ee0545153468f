package db_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meater_sync/internal/models"
	"meater_sync/internal/repository"
	"meater_sync/internal/repository/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDB_SchemaRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meater.db")
	conn, err := db.InitDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// applying the schema twice is a no-op
	again, err := db.InitDB(path)
	require.NoError(t, err)
	_ = again.Close()

	repo := repository.NewRepository(conn)
	ctx := context.Background()

	state := models.DeviceState{
		ID:                 "abc123",
		DisplayName:        "Meater Thermometer (abc1)",
		InternalTempC:      54.25,
		AmbientTempC:       120,
		CookRefresh:        "ACTIVE",
		External:           true,
		RefreshRateSeconds: 1800,
		UpdatedAt:          time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.StateRepo.Save(ctx, state))

	state.InternalTempC = 60
	require.NoError(t, repo.StateRepo.Save(ctx, state))

	got, err := repo.StateRepo.Load(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.InternalTempC)
	assert.True(t, got.External)
	assert.True(t, got.UpdatedAt.Equal(state.UpdatedAt))

	all, err := repo.StateRepo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.StateRepo.Delete(ctx, "abc123"))
	_, err = repo.StateRepo.Load(ctx, "abc123")
	assert.ErrorIs(t, err, repository.ErrDeviceNotFound)

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.EventRepo.Append(ctx, models.SyncEvent{OccurredAt: base, Type: models.EventDiscovered, DeviceID: "abc123", Description: "found"}))
	require.NoError(t, repo.EventRepo.Append(ctx, models.SyncEvent{OccurredAt: base.Add(time.Minute), Type: models.EventTokenRefreshed, Description: "login"}))
	require.NoError(t, repo.EventRepo.Append(ctx, models.SyncEvent{OccurredAt: base.Add(2 * time.Minute), Type: models.EventRemoved, DeviceID: "abc123", Description: "gone"}))

	evs, err := repo.EventRepo.List(ctx, repository.EventFilter{DeviceID: "abc123"})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, models.EventDiscovered, evs[0].Type)
	assert.Equal(t, models.EventRemoved, evs[1].Type)

	evs, err = repo.EventRepo.List(ctx, repository.EventFilter{From: base.Add(30 * time.Second), To: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventTokenRefreshed, evs[0].Type)

	id, err := repo.Auth.Create(ctx, "pitmaster", "hash")
	require.NoError(t, err)
	_, err = repo.Auth.Create(ctx, "pitmaster", "hash")
	assert.ErrorIs(t, err, repository.ErrUsernameTaken)
	u, err := repo.Auth.GetByUsername(ctx, "pitmaster")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
}
