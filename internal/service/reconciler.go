package service

import (
	"context"

	ms "meater_sync"
	"meater_sync/internal/config"
	"meater_sync/internal/logger"
	"meater_sync/internal/models"
)

// Scheduling is the part of the scheduler the reconciler drives.
type Scheduling interface {
	Schedule(rec *Record)
	Unschedule(id string)
}

// ReconcileResult lists the device ids touched by one pass.
type ReconcileResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

// Reconciler turns a remote listing plus the user's overrides into the set of local records.
type Reconciler struct {
	registry  *Registry
	scheduler Scheduling
	presenter Presenter
	events    EventRecorder
	defaults  Defaults
	log       *logger.Logger
}

func NewReconciler(registry *Registry, scheduler Scheduling, presenter Presenter, events EventRecorder, defaults Defaults, log *logger.Logger) *Reconciler {
	return &Reconciler{
		registry:  registry,
		scheduler: scheduler,
		presenter: presenter,
		events:    events,
		defaults:  defaults,
		log:       log,
	}
}

// Reconcile applies one listing. Records are created, updated in place or
// removed so that afterwards the registry holds exactly the visible remote
// devices, each handed to the scheduler.
func (r *Reconciler) Reconcile(ctx context.Context, remote []ms.RemoteDevice, overrides []config.DeviceOverride) ReconcileResult {
	byID := make(map[string]*config.DeviceOverride, len(overrides))
	for i := range overrides {
		byID[overrides[i].ID] = &overrides[i]
	}

	var res ReconcileResult
	seen := make(map[string]bool, len(remote))

	for _, dev := range remote {
		if seen[dev.ID] {
			continue
		}
		seen[dev.ID] = true

		settings, clamped := MergeSettings(dev, byID[dev.ID], r.defaults)
		if clamped {
			r.log.Warnw("refresh_rate_clamped", "device", dev.ID, "min_seconds", MinRefreshRate)
		}

		if settings.Hidden {
			if r.remove(ctx, dev.ID, models.EventHidden, "probe hidden by configuration") {
				res.Removed = append(res.Removed, dev.ID)
			} else {
				r.log.Debugw("device_hidden", "device", dev.ID)
			}
			continue
		}

		rec, ok := r.registry.Get(dev.ID)
		if !ok {
			rec = NewRecord(settings, r.log)
			r.registry.put(rec)
			r.presenter.Register(rec.View())
			r.events.Record(ctx, models.EventDiscovered, dev.ID, "probe discovered", map[string]any{
				"name":         settings.DisplayName,
				"refresh_rate": settings.RefreshRateSeconds,
			})
			rec.logger().Infow("device_discovered", "name", settings.DisplayName)
			res.Created = append(res.Created, dev.ID)
		} else {
			changed := rec.setSettings(settings, r.log)
			if rec.CookState() == CookNotFound && rec.setCookState(CookActive) {
				rec.logger().Infow("cook_refresh_restored", "reason", "device listed again")
				r.events.Record(ctx, models.EventCookEnabled, dev.ID, "probe listed again, cook refresh resumed", nil)
				changed = true
			}
			if changed {
				r.presenter.Register(rec.View())
			}
			res.Updated = append(res.Updated, dev.ID)
		}
		r.scheduler.Schedule(rec)
	}

	for _, rec := range r.registry.List() {
		if seen[rec.ID] {
			continue
		}
		if r.remove(ctx, rec.ID, models.EventRemoved, "probe no longer listed") {
			res.Removed = append(res.Removed, rec.ID)
		}
	}

	r.presenter.Reconciled(r.registry.Views())
	r.log.Infow("reconciled",
		"created", len(res.Created), "updated", len(res.Updated), "removed", len(res.Removed),
		"devices", r.registry.Len())
	return res
}

func (r *Reconciler) remove(ctx context.Context, id, eventType, reason string) bool {
	rec, ok := r.registry.remove(id)
	if !ok {
		return false
	}
	rec.markRemoved()
	r.scheduler.Unschedule(id)
	r.presenter.Unregister(id)
	r.events.Record(ctx, eventType, id, reason, nil)
	rec.logger().Infow("device_removed", "reason", reason)
	return true
}
