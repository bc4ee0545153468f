package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	ms "meater_sync"
	"meater_sync/internal/config"
	"meater_sync/internal/logger"
	"meater_sync/internal/meater"
	"meater_sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcLister struct {
	calls atomic.Int32
	fn    func() ([]ms.RemoteDevice, error)
}

func (l *funcLister) ListDevices(context.Context) ([]ms.RemoteDevice, error) {
	l.calls.Add(1)
	return l.fn()
}

func newDiscoveryFixture(lister DeviceLister, overrides ...config.DeviceOverride) (*Discovery, *reconcilerFixture) {
	f := newReconcilerFixture()
	d := NewDiscovery(lister, f.r, overrides, NewEventLogService(f.events, logger.Nop()), logger.Nop())
	return d, f
}

func TestDiscovery_RunOnceReconciles(t *testing.T) {
	lister := &funcLister{fn: func() ([]ms.RemoteDevice, error) {
		return []ms.RemoteDevice{device("A", 1, 1), device("B", 2, 2)}, nil
	}}
	d, f := newDiscoveryFixture(lister, config.DeviceOverride{ID: "B", HideDevice: ptr(true)})

	res, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Created)
	assert.Equal(t, 1, f.registry.Len())
	assert.False(t, d.LastSuccess().IsZero())
}

func TestDiscovery_FailuresKeepRecordsAndAreRecorded(t *testing.T) {
	var listErr error
	lister := &funcLister{fn: func() ([]ms.RemoteDevice, error) {
		if listErr != nil {
			return nil, listErr
		}
		return []ms.RemoteDevice{device("A", 1, 1)}, nil
	}}
	d, f := newDiscoveryFixture(lister)
	_, err := d.RunOnce(context.Background())
	require.NoError(t, err)

	tests := []struct {
		err       error
		wantEvent string
	}{
		{&meater.Error{Class: meater.ClassConfig, Kind: meater.KindMissingCredentials}, models.EventConfigError},
		{&meater.Error{Class: meater.ClassAuth, Kind: meater.KindUnauthorized, Transport: 401}, models.EventAuthError},
		{&meater.Error{Class: meater.ClassNetwork, Kind: meater.KindTransport, Err: errors.New("no route")}, models.EventPollError},
	}
	for _, tt := range tests {
		listErr = tt.err
		_, err := d.RunOnce(context.Background())
		assert.ErrorIs(t, err, tt.err)
		types := f.events.types()
		assert.Equal(t, tt.wantEvent, types[len(types)-1])
		assert.Equal(t, 1, f.registry.Len(), "failed pass leaves records alone")
	}
}

func TestDiscovery_RunRepeatsUntilCanceled(t *testing.T) {
	lister := &funcLister{fn: func() ([]ms.RemoteDevice, error) { return nil, nil }}
	d, _ := newDiscoveryFixture(lister)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return lister.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDiscovery_RunWithoutIntervalFallsBackToDefault(t *testing.T) {
	lister := &funcLister{fn: func() ([]ms.RemoteDevice, error) { return nil, nil }}
	d, _ := newDiscoveryFixture(lister)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NotPanics(t, func() { d.Run(ctx, 0) })
	}()

	require.Eventually(t, func() bool { return lister.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.EqualValues(t, 1, lister.calls.Load())
}
