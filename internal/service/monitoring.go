package service

import (
	"context"
	"errors"
	"time"

	"meater_sync/internal/models"
	"meater_sync/internal/repository"
)

// DeviceDetail is a live view plus the row last written for the probe.
type DeviceDetail struct {
	DeviceView
	Live   bool                `json:"live"` // false when the probe is only known from storage
	Stored *models.DeviceState `json:"stored,omitempty"`
}

type MonitoringService struct {
	registry  *Registry
	stateRepo repository.StateRepo
}

func NewMonitoringService(registry *Registry, stateRepo repository.StateRepo) *MonitoringService {
	return &MonitoringService{registry: registry, stateRepo: stateRepo}
}

// ListDevices returns the live records ordered by id.
func (s *MonitoringService) ListDevices(_ context.Context) ([]DeviceView, error) {
	return s.registry.Views(), nil
}

// GetDevice returns the effective configuration and latest values of id.
// A probe that is not live but still has a stored row is returned from storage.
func (s *MonitoringService) GetDevice(ctx context.Context, id string) (DeviceDetail, error) {
	var d DeviceDetail
	if v, ok := s.registry.View(id); ok {
		d.DeviceView, d.Live = v, true
	}

	st, err := s.stateRepo.Load(ctx, id)
	switch {
	case err == nil:
		st.UpdatedAt = toUTC(st.UpdatedAt)
		d.Stored = &st
	case errors.Is(err, repository.ErrDeviceNotFound):
	default:
		return DeviceDetail{}, err
	}

	if !d.Live {
		if d.Stored == nil {
			return DeviceDetail{}, ErrUnknownDevice
		}
		d.DeviceView = viewFromState(*d.Stored)
	}
	return d, nil
}

// StoredStates returns every row in the state table.
func (s *MonitoringService) StoredStates(ctx context.Context) ([]models.DeviceState, error) {
	states, err := s.stateRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range states {
		states[i].UpdatedAt = toUTC(states[i].UpdatedAt)
	}
	return states, nil
}

func viewFromState(st models.DeviceState) DeviceView {
	return DeviceView{
		DeviceSettings: DeviceSettings{
			ID:                 st.ID,
			DisplayName:        st.DisplayName,
			External:           st.External,
			Firmware:           st.Firmware,
			RefreshRateSeconds: st.RefreshRateSeconds,
		},
		CookRefresh: st.CookRefresh,
	}
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
