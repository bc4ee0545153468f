package service

import (
	"context"
	"sync"
	"time"

	"meater_sync/internal/logger"
	"meater_sync/internal/models"
	"meater_sync/internal/repository"
)

const storeTimeout = 5 * time.Second

// StatePresenter keeps the latest state row of every probe in the state repository.
type StatePresenter struct {
	repo repository.StateRepo
	log  *logger.Logger
}

func NewStatePresenter(repo repository.StateRepo, log *logger.Logger) *StatePresenter {
	return &StatePresenter{repo: repo, log: log}
}

// ToDeviceState flattens a view into the stored row.
func ToDeviceState(v DeviceView) models.DeviceState {
	st := models.DeviceState{
		ID:                 v.ID,
		DisplayName:        v.DisplayName,
		InternalTempC:      v.Snapshot.Temperature.Internal,
		AmbientTempC:       v.Snapshot.Temperature.Ambient,
		CookRefresh:        v.CookRefresh,
		External:           v.External,
		Firmware:           v.Firmware,
		RefreshRateSeconds: v.RefreshRateSeconds,
		UpdatedAt:          time.Now().UTC(),
	}
	if c := v.Snapshot.Cook; c != nil {
		st.CookState = c.State
		st.CookName = c.Name
		st.TargetTempC = c.Temperature.Target
		st.PeakTempC = c.Temperature.Peak
		st.ElapsedSeconds = c.Time.Elapsed
		st.RemainingSeconds = c.Time.Remaining
	}
	if v.Snapshot.UpdatedAt > 0 {
		st.UpdatedAt = time.Unix(v.Snapshot.UpdatedAt, 0).UTC()
	}
	return st
}

func (p *StatePresenter) save(v DeviceView) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.repo.Save(ctx, ToDeviceState(v)); err != nil {
		p.log.Errorw("state_save_failed", "device", v.ID, "err", err)
	}
}

func (p *StatePresenter) Register(v DeviceView) { p.save(v) }

func (p *StatePresenter) Update(v DeviceView, _ Field, _ any) { p.save(v) }

func (p *StatePresenter) Unregister(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.repo.Delete(ctx, id); err != nil {
		p.log.Errorw("state_delete_failed", "device", id, "err", err)
	}
}

func (p *StatePresenter) Reconciled(views []DeviceView) {
	p.log.Debugw("state_reconciled", "devices", len(views))
}

// Change is one message on the change stream.
type Change struct {
	Type  string `json:"type"` // register | update | unregister
	ID    string `json:"id"`
	Field Field  `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
}

const subscriberBuffer = 32

// Broadcaster fans presenter calls out to live subscribers such as websocket clients.
// A subscriber that falls behind loses messages rather than blocking the pollers.
type Broadcaster struct {
	log *logger.Logger

	mu   sync.Mutex
	next int
	subs map[int]chan Change
}

func NewBroadcaster(log *logger.Logger) *Broadcaster {
	return &Broadcaster{log: log, subs: make(map[int]chan Change)}
}

// Subscribe returns a channel of changes and a func that closes it.
func (b *Broadcaster) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) send(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- c:
		default:
			b.log.Debugw("broadcast_dropped", "subscriber", id, "device", c.ID)
		}
	}
}

func (b *Broadcaster) Register(v DeviceView) {
	b.send(Change{Type: "register", ID: v.ID, Value: v})
}

func (b *Broadcaster) Update(v DeviceView, field Field, value any) {
	b.send(Change{Type: "update", ID: v.ID, Field: field, Value: value})
}

func (b *Broadcaster) Unregister(id string) {
	b.send(Change{Type: "unregister", ID: id})
}

func (b *Broadcaster) Reconciled([]DeviceView) {}
