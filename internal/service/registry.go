package service

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	ms "meater_sync"
	"meater_sync/internal/config"
	"meater_sync/internal/logger"
)

// MinRefreshRate is the lowest poll period accepted for a probe, in seconds.
const MinRefreshRate = config.DefaultRefreshRate

// CookState says whether a probe's cook data is being refreshed, and if not, why.
type CookState int

const (
	CookActive       CookState = iota
	CookUserDisabled           // switched off from the API
	CookNotFound               // the cloud answered 404 for the probe
)

func (c CookState) String() string {
	switch c {
	case CookUserDisabled:
		return "USER_DISABLED"
	case CookNotFound:
		return "NOT_FOUND"
	default:
		return "ACTIVE"
	}
}

// DeviceSettings is the effective configuration of a probe after overrides are applied.
type DeviceSettings struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"display_name"`
	Hidden             bool   `json:"hidden"`
	External           bool   `json:"external"`
	Firmware           string `json:"firmware"`
	RefreshRateSeconds int    `json:"refresh_rate_seconds"`
	Logging            string `json:"logging"`
}

// Defaults fill whatever an override leaves unset.
type Defaults struct {
	RefreshRateSeconds int
	Firmware           string
	Logging            string
}

// DefaultDisplayName is used when no configDeviceName override exists.
func DefaultDisplayName(id string) string {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return fmt.Sprintf("Meater Thermometer (%s)", short)
}

// MergeSettings layers override on top of the defaults for remote. Fields set
// in the override always win. The returned bool reports that the requested
// refresh rate was below MinRefreshRate and got raised.
func MergeSettings(remote ms.RemoteDevice, override *config.DeviceOverride, d Defaults) (DeviceSettings, bool) {
	s := DeviceSettings{
		ID:                 remote.ID,
		DisplayName:        DefaultDisplayName(remote.ID),
		Firmware:           d.Firmware,
		RefreshRateSeconds: d.RefreshRateSeconds,
		Logging:            d.Logging,
	}
	if override != nil {
		if override.ConfigDeviceName != nil && *override.ConfigDeviceName != "" {
			s.DisplayName = *override.ConfigDeviceName
		}
		if override.HideDevice != nil {
			s.Hidden = *override.HideDevice
		}
		if override.External != nil {
			s.External = *override.External
		}
		if override.Firmware != nil && *override.Firmware != "" {
			s.Firmware = *override.Firmware
		}
		if override.RefreshRate != nil {
			s.RefreshRateSeconds = *override.RefreshRate
		}
		if override.Logging != nil && *override.Logging != "" {
			s.Logging = *override.Logging
		}
	}

	clamped := false
	if s.RefreshRateSeconds < MinRefreshRate {
		s.RefreshRateSeconds = MinRefreshRate
		clamped = true
	}
	return s, clamped
}

// DeviceView is what presenters and the API see of a probe.
type DeviceView struct {
	DeviceSettings
	CookRefresh string          `json:"cook_refresh"`
	Snapshot    ms.RemoteDevice `json:"snapshot"`
}

// Record is the local mirror of one remote probe.
type Record struct {
	ID string

	pollInFlight atomic.Bool

	// pubMu serializes presenter updates with removal.
	pubMu   sync.Mutex
	removed bool

	mu       sync.Mutex
	settings DeviceSettings
	snapshot ms.RemoteDevice
	cook     CookState
	failures int
	skip     int
	log      *logger.Logger
}

func NewRecord(settings DeviceSettings, log *logger.Logger) *Record {
	return &Record{
		ID:       settings.ID,
		settings: settings,
		log:      log.ForDevice(settings.ID, settings.Logging),
	}
}

func (r *Record) Settings() DeviceSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// setSettings replaces the settings and reports whether anything changed.
func (r *Record) setSettings(s DeviceSettings, base *logger.Logger) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settings == s {
		return false
	}
	if r.settings.Logging != s.Logging {
		r.log = base.ForDevice(s.ID, s.Logging)
	}
	r.settings = s
	return true
}

func (r *Record) Snapshot() ms.RemoteDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// swapSnapshot stores snap and returns the previous one.
func (r *Record) swapSnapshot(snap ms.RemoteDevice) ms.RemoteDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.snapshot
	r.snapshot = snap
	return prev
}

func (r *Record) CookState() CookState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cook
}

// setCookState returns false when the state was already c.
func (r *Record) setCookState(c CookState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cook == c {
		return false
	}
	r.cook = c
	return true
}

// markRemoved waits for a publish in progress and turns later ones into no-ops.
func (r *Record) markRemoved() {
	r.pubMu.Lock()
	r.removed = true
	r.pubMu.Unlock()
}

// Removed reports whether the record was dropped from the registry.
func (r *Record) Removed() bool {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	return r.removed
}

// PollInFlight reports whether a fetch for this probe is outstanding.
func (r *Record) PollInFlight() bool { return r.pollInFlight.Load() }

func (r *Record) logger() *logger.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log
}

// failed counts a failed poll and returns how many upcoming ticks to skip
// when backoff is on.
func (r *Record) failed(b BackoffPolicy) (failures, skip int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	if b.Enabled {
		r.skip = b.skipFor(r.failures)
	}
	return r.failures, r.skip
}

func (r *Record) succeeded() {
	r.mu.Lock()
	r.failures, r.skip = 0, 0
	r.mu.Unlock()
}

// takeSkip consumes one pending backoff skip.
func (r *Record) takeSkip() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skip == 0 {
		return false
	}
	r.skip--
	return true
}

func (r *Record) View() DeviceView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return DeviceView{
		DeviceSettings: r.settings,
		CookRefresh:    r.cook.String(),
		Snapshot:       r.snapshot,
	}
}

// Registry holds the current set of records keyed by device id.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

func (g *Registry) Get(id string) (*Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[id]
	return rec, ok
}

// Contains reports whether rec is still the live record for its id.
func (g *Registry) Contains(rec *Record) bool {
	cur, ok := g.Get(rec.ID)
	return ok && cur == rec
}

func (g *Registry) put(rec *Record) {
	g.mu.Lock()
	g.records[rec.ID] = rec
	g.mu.Unlock()
}

func (g *Registry) remove(id string) (*Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[id]
	if ok {
		delete(g.records, id)
	}
	return rec, ok
}

// List returns the records ordered by id.
func (g *Registry) List() []*Record {
	g.mu.RLock()
	out := make([]*Record, 0, len(g.records))
	for _, rec := range g.records {
		out = append(out, rec)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Registry) Views() []DeviceView {
	recs := g.List()
	out := make([]DeviceView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.View())
	}
	return out
}

// View returns the effective configuration and last snapshot of a probe.
func (g *Registry) View(id string) (DeviceView, bool) {
	rec, ok := g.Get(id)
	if !ok {
		return DeviceView{}, false
	}
	return rec.View(), true
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}
