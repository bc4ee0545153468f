package service

import (
	ms "meater_sync"
)

// Field names a tracked value of a probe.
type Field string

const (
	FieldInternalTemp Field = "internal_temp"
	FieldAmbientTemp  Field = "ambient_temp"
	FieldCookState    Field = "cook_state"
	FieldCookRefresh  Field = "cook_refresh"
)

// Presenter is the downstream side that renders probes somewhere.
// Calls for one device arrive in order; different devices may interleave.
type Presenter interface {
	// Register is called when a probe appears or its settings change.
	Register(v DeviceView)
	// Update is called once per changed field. v already holds the new snapshot.
	Update(v DeviceView, field Field, value any)
	// Unregister is called when a probe is hidden or gone from the account.
	Unregister(id string)
	// Reconciled receives the full device set after every reconciliation pass.
	Reconciled(views []DeviceView)
}

// Presenters fans every call out to each presenter in order.
type Presenters []Presenter

func (p Presenters) Register(v DeviceView) {
	for _, pr := range p {
		pr.Register(v)
	}
}

func (p Presenters) Update(v DeviceView, field Field, value any) {
	for _, pr := range p {
		pr.Update(v, field, value)
	}
}

func (p Presenters) Unregister(id string) {
	for _, pr := range p {
		pr.Unregister(id)
	}
}

func (p Presenters) Reconciled(views []DeviceView) {
	for _, pr := range p {
		pr.Reconciled(views)
	}
}

// Publisher diffs a fresh snapshot against the last one and forwards only the changes.
type Publisher struct {
	presenter Presenter
}

func NewPublisher(p Presenter) *Publisher {
	return &Publisher{presenter: p}
}

type fieldChange struct {
	field Field
	value any
}

func diff(prev, next ms.RemoteDevice) []fieldChange {
	var out []fieldChange
	// exact comparison: the cloud reports discrete values
	if prev.Temperature.Internal != next.Temperature.Internal {
		out = append(out, fieldChange{FieldInternalTemp, next.Temperature.Internal})
	}
	if prev.Temperature.Ambient != next.Temperature.Ambient {
		out = append(out, fieldChange{FieldAmbientTemp, next.Temperature.Ambient})
	}
	if prev.CookState() != next.CookState() {
		out = append(out, fieldChange{FieldCookState, next.CookState()})
	}
	return out
}

// Publish stores snap as rec's last snapshot and notifies the presenter for
// each tracked field that differs from the previous one. It returns the
// fields that changed. Nothing is published for a removed record.
func (p *Publisher) Publish(rec *Record, snap ms.RemoteDevice) []Field {
	rec.pubMu.Lock()
	defer rec.pubMu.Unlock()
	if rec.removed {
		return nil
	}

	prev := rec.swapSnapshot(snap)
	changes := diff(prev, snap)
	if len(changes) == 0 {
		return nil
	}

	view := rec.View()
	fields := make([]Field, 0, len(changes))
	for _, ch := range changes {
		p.presenter.Update(view, ch.field, ch.value)
		fields = append(fields, ch.field)
	}
	return fields
}

// CookRefreshChanged tells the presenter that rec's cook refresh state moved.
func (p *Publisher) CookRefreshChanged(rec *Record) {
	rec.pubMu.Lock()
	defer rec.pubMu.Unlock()
	if rec.removed {
		return
	}
	v := rec.View()
	p.presenter.Update(v, FieldCookRefresh, v.CookRefresh)
}
