package repository

import (
	"context"
	"database/sql"
	"time"

	"meater_sync/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// StateRepo keeps the latest presented state of each probe.
type StateRepo interface {
	Save(ctx context.Context, s models.DeviceState) error
	Load(ctx context.Context, id string) (models.DeviceState, error)
	List(ctx context.Context) ([]models.DeviceState, error)
	Delete(ctx context.Context, id string) error
}

// EventFilter narrows EventRepo.List. Zero values mean "no bound".
type EventFilter struct {
	From     time.Time
	To       time.Time
	Type     string
	DeviceID string
}

type EventRepo interface {
	Append(ctx context.Context, e models.SyncEvent) error
	List(ctx context.Context, f EventFilter) ([]models.SyncEvent, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserSQLite(db),
	}
}
