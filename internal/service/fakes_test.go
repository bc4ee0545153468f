package service

import (
	"context"
	"sync"
	"sync/atomic"

	ms "meater_sync"
	"meater_sync/internal/models"
	"meater_sync/internal/repository"
)

// fakeEventRepo records appended events and answers List with a canned slice.
type fakeEventRepo struct {
	mu        sync.Mutex
	events    []models.SyncEvent
	listed    []models.SyncEvent
	gotFilter repository.EventFilter
	listCalls int
	err       error
}

func (f *fakeEventRepo) Append(_ context.Context, e models.SyncEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeEventRepo) List(_ context.Context, filter repository.EventFilter) ([]models.SyncEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.gotFilter = filter
	return f.listed, f.err
}

func (f *fakeEventRepo) appended() []models.SyncEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SyncEvent(nil), f.events...)
}

func (f *fakeEventRepo) types() []string {
	var out []string
	for _, e := range f.appended() {
		out = append(out, e.Type)
	}
	return out
}

// fakeStateRepo is an in-memory StateRepo.
type fakeStateRepo struct {
	mu      sync.Mutex
	rows    map[string]models.DeviceState
	saves   int
	loadErr error
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{rows: make(map[string]models.DeviceState)}
}

func (f *fakeStateRepo) Save(_ context.Context, s models.DeviceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.rows[s.ID] = s
	return nil
}

func (f *fakeStateRepo) Load(_ context.Context, id string) (models.DeviceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return models.DeviceState{}, f.loadErr
	}
	s, ok := f.rows[id]
	if !ok {
		return models.DeviceState{}, repository.ErrDeviceNotFound
	}
	return s, nil
}

func (f *fakeStateRepo) List(_ context.Context) ([]models.DeviceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.DeviceState, 0, len(f.rows))
	for _, s := range f.rows {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStateRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeStateRepo) row(id string) (models.DeviceState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	return s, ok
}

type presenterCall struct {
	op    string
	id    string
	field Field
	value any
}

// recordingPresenter remembers every call in order.
type recordingPresenter struct {
	mu         sync.Mutex
	calls      []presenterCall
	reconciled [][]DeviceView
}

func (p *recordingPresenter) add(c presenterCall) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *recordingPresenter) Register(v DeviceView) { p.add(presenterCall{op: "register", id: v.ID}) }

func (p *recordingPresenter) Update(v DeviceView, f Field, value any) {
	p.add(presenterCall{op: "update", id: v.ID, field: f, value: value})
}

func (p *recordingPresenter) Unregister(id string) { p.add(presenterCall{op: "unregister", id: id}) }

func (p *recordingPresenter) Reconciled(views []DeviceView) {
	p.mu.Lock()
	p.reconciled = append(p.reconciled, views)
	p.mu.Unlock()
}

func (p *recordingPresenter) ops(op string) []presenterCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []presenterCall
	for _, c := range p.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *recordingPresenter) reset() {
	p.mu.Lock()
	p.calls = nil
	p.reconciled = nil
	p.mu.Unlock()
}

// fakeScheduling records Schedule/Unschedule calls.
type fakeScheduling struct {
	mu          sync.Mutex
	scheduled   []string
	unscheduled []string
}

func (f *fakeScheduling) Schedule(rec *Record) {
	f.mu.Lock()
	f.scheduled = append(f.scheduled, rec.ID)
	f.mu.Unlock()
}

func (f *fakeScheduling) Unschedule(id string) {
	f.mu.Lock()
	f.unscheduled = append(f.unscheduled, id)
	f.mu.Unlock()
}

// fakeFetcher answers FetchDevice from a function and counts calls.
// When gate is set every call blocks until it is closed.
type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{}
	fn    func(id string) (ms.RemoteDevice, error)
}

func (f *fakeFetcher) FetchDevice(ctx context.Context, id string) (ms.RemoteDevice, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ms.RemoteDevice{}, ctx.Err()
		}
	}
	return f.fn(id)
}

func device(id string, internal, ambient float64) ms.RemoteDevice {
	return ms.RemoteDevice{ID: id, Temperature: ms.Temperature{Internal: internal, Ambient: ambient}}
}

func ptr[T any](v T) *T { return &v }
