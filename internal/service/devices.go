package service

import "context"

// ControlService exposes the operator actions on probes.
type ControlService struct {
	scheduler *Scheduler
	discovery *Discovery
}

func NewControlService(scheduler *Scheduler, discovery *Discovery) *ControlService {
	return &ControlService{scheduler: scheduler, discovery: discovery}
}

// SetCookRefresh turns cook refresh for a probe on or off.
func (s *ControlService) SetCookRefresh(_ context.Context, id string, on bool) (DeviceView, error) {
	return s.scheduler.SetCookRefresh(id, on)
}

// Sync runs a discovery pass now.
func (s *ControlService) Sync(ctx context.Context) (ReconcileResult, error) {
	return s.discovery.RunOnce(ctx)
}
