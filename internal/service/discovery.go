package service

import (
	"context"
	"sync"
	"time"

	ms "meater_sync"
	"meater_sync/internal/config"
	"meater_sync/internal/logger"
	"meater_sync/internal/meater"
	"meater_sync/internal/models"
)

// DeviceLister lists every probe on the account.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]ms.RemoteDevice, error)
}

// Discovery periodically lists the account's probes and reconciles them.
type Discovery struct {
	lister     DeviceLister
	reconciler *Reconciler
	overrides  []config.DeviceOverride
	events     EventRecorder
	log        *logger.Logger

	mu   sync.Mutex // one pass at a time
	last time.Time
}

func NewDiscovery(lister DeviceLister, reconciler *Reconciler, overrides []config.DeviceOverride, events EventRecorder, log *logger.Logger) *Discovery {
	return &Discovery{
		lister:     lister,
		reconciler: reconciler,
		overrides:  overrides,
		events:     events,
		log:        log,
	}
}

// Run performs a pass immediately and then every interval until ctx is canceled.
func (d *Discovery) Run(ctx context.Context, interval time.Duration) {
	_, _ = d.RunOnce(ctx)

	if interval <= 0 {
		interval = time.Duration(config.DefaultDiscoveryRate) * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = d.RunOnce(ctx)
		}
	}
}

// RunOnce lists the probes and reconciles them. A failed listing leaves the
// current records untouched; the next pass starts over.
func (d *Discovery) RunOnce(ctx context.Context) (ReconcileResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	remote, err := d.lister.ListDevices(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ReconcileResult{}, err
		}
		d.reportFailure(ctx, err)
		return ReconcileResult{}, err
	}

	res := d.reconciler.Reconcile(ctx, remote, d.overrides)
	d.last = time.Now().UTC()
	return res, nil
}

// LastSuccess returns when the last pass completed, or the zero time.
func (d *Discovery) LastSuccess() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Discovery) reportFailure(ctx context.Context, err error) {
	switch meater.ClassOf(err) {
	case meater.ClassConfig:
		d.log.Errorw("discovery_aborted", "reason", "configuration", "err", err)
		d.events.Record(ctx, models.EventConfigError, "", err.Error(), nil)
	case meater.ClassAuth:
		d.log.Errorw("discovery_aborted", "reason", "authentication", "err", err)
		d.events.Record(ctx, models.EventAuthError, "", err.Error(), nil)
	default:
		d.log.Warnw("discovery_failed", "class", meater.ClassOf(err), "err", err)
		d.events.Record(ctx, models.EventPollError, "", err.Error(), nil)
	}
}
