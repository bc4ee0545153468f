package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"meater_sync/internal/logger"
	"meater_sync/internal/models"
	"meater_sync/internal/repository"

	"github.com/google/uuid"
)

// LogFilter narrows the sync log. Zero values mean "no bound".
type LogFilter struct {
	From     time.Time // inclusive
	To       time.Time // inclusive
	Type     string    // one of the models.Event* constants
	DeviceID string
}

// EventRecorder appends to the sync log. Failures are logged, never returned.
type EventRecorder interface {
	Record(ctx context.Context, typ, deviceID, description string, meta any)
}

type EventLogService struct {
	eventRepo repository.EventRepo
	log       *logger.Logger
	onRecord  func(typ string)
}

func NewEventLogService(eventRepo repository.EventRepo, log *logger.Logger) *EventLogService {
	return &EventLogService{eventRepo: eventRepo, log: log}
}

// OnRecord registers fn to be called with the type of every recorded event.
// It must be set before the engine starts.
func (s *EventLogService) OnRecord(fn func(typ string)) {
	s.onRecord = fn
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (repository.EventFilter, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return repository.EventFilter{}, errInvalidTimeRange
	}

	return repository.EventFilter{
		From:     from,
		To:       to,
		Type:     normalizeEventType(f.Type),
		DeviceID: strings.TrimSpace(f.DeviceID),
	}, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.SyncEvent, error) {
	rf, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, rf)
}

// Record appends an event stamped with a fresh id and the current time.
func (s *EventLogService) Record(ctx context.Context, typ, deviceID, description string, meta any) {
	if s.onRecord != nil {
		s.onRecord(typ)
	}
	err := s.eventRepo.Append(ctx, models.SyncEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		DeviceID:    deviceID,
		Description: description,
		Metadata:    meta,
	})
	if err != nil {
		s.log.Errorw("event_append_failed", "type", typ, "device", deviceID, "err", err)
	}
}
