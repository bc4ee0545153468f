package service

import (
	"context"
	"errors"
	"sync"
	"time"

	ms "meater_sync"
	"meater_sync/internal/logger"
	"meater_sync/internal/meater"
	"meater_sync/internal/models"
)

// ErrUnknownDevice is returned for ids that have no record.
var ErrUnknownDevice = errors.New("unknown device")

// DeviceFetcher fetches one probe.
type DeviceFetcher interface {
	FetchDevice(ctx context.Context, id string) (ms.RemoteDevice, error)
}

// BackoffPolicy spaces out polls of a probe that keeps failing.
// After n consecutive failures, min(2^(n-1)-1, MaxSkip) ticks are skipped.
type BackoffPolicy struct {
	Enabled bool
	MaxSkip int
}

func (b BackoffPolicy) skipFor(failures int) int {
	if failures <= 1 || b.MaxSkip <= 0 {
		return 0
	}
	skip := 1
	for i := 1; i < failures-1 && skip <= b.MaxSkip; i++ {
		skip = skip*2 + 1
	}
	if skip > b.MaxSkip {
		return b.MaxSkip
	}
	return skip
}

type pollTimer struct {
	period time.Duration
	cancel context.CancelFunc
}

// Scheduler runs one ticker per record and polls the cloud on every tick.
// A tick that finds the previous fetch still outstanding is dropped.
type Scheduler struct {
	fetcher   DeviceFetcher
	registry  *Registry
	publisher *Publisher
	events    EventRecorder
	backoff   BackoffPolicy
	log       *logger.Logger

	// unit converts refresh rates to durations; tests shrink it.
	unit time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[string]*pollTimer
	// polling holds the ids with a fetch outstanding. It outlives records,
	// so a probe that is removed and listed again is not fetched twice.
	polling map[string]struct{}
	timerW  sync.WaitGroup
	pollW   sync.WaitGroup
}

func NewScheduler(fetcher DeviceFetcher, registry *Registry, publisher *Publisher, events EventRecorder, backoff BackoffPolicy, log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		fetcher:   fetcher,
		registry:  registry,
		publisher: publisher,
		events:    events,
		backoff:   backoff,
		log:       log,
		unit:      time.Second,
		ctx:       ctx,
		cancel:    cancel,
		timers:    make(map[string]*pollTimer),
		polling:   make(map[string]struct{}),
	}
}

// Schedule starts polling rec. A record that is already scheduled is only
// restarted when its refresh rate changed.
func (s *Scheduler) Schedule(rec *Record) {
	period := time.Duration(rec.Settings().RefreshRateSeconds) * s.unit

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if t, ok := s.timers[rec.ID]; ok {
		if t.period == period {
			return
		}
		t.cancel()
		rec.logger().Infow("poll_rescheduled", "period", period.String())
	} else {
		rec.logger().Debugw("poll_scheduled", "period", period.String())
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.timers[rec.ID] = &pollTimer{period: period, cancel: cancel}
	s.timerW.Add(1)
	go s.run(ctx, rec, period)
}

// Unschedule stops the timer for id. A fetch already running is not aborted;
// its result is dropped because the record is gone.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.cancel()
		delete(s.timers, id)
	}
}

// Scheduled reports whether id has a running timer.
func (s *Scheduler) Scheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Stop cancels every timer and in-flight fetch and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.timers = make(map[string]*pollTimer)
	s.mu.Unlock()

	s.timerW.Wait()
	s.pollW.Wait()
}

func (s *Scheduler) run(ctx context.Context, rec *Record, period time.Duration) {
	defer s.timerW.Done()

	s.Tick(rec)

	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(rec)
		}
	}
}

// Tick is one timer fire for rec. It reports whether a fetch was started.
func (s *Scheduler) Tick(rec *Record) bool {
	log := rec.logger()

	if cs := rec.CookState(); cs != CookActive {
		log.Debugw("polling_suppressed", "cause", cs.String())
		return false
	}
	if s.backoff.Enabled && rec.takeSkip() {
		log.Debugw("poll_backoff_skip")
		return false
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if _, busy := s.polling[rec.ID]; busy {
		s.mu.Unlock()
		log.Debugw("poll_skipped", "reason", "previous fetch still in flight")
		return false
	}
	s.polling[rec.ID] = struct{}{}
	rec.pollInFlight.Store(true)
	s.pollW.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pollW.Done()
		s.poll(rec)
		s.release(rec)
		// The probe may have been listed again while this fetch was stale.
		if next, ok := s.registry.Get(rec.ID); ok && next != rec && s.Scheduled(rec.ID) {
			s.Tick(next)
		}
	}()
	return true
}

func (s *Scheduler) release(rec *Record) {
	s.mu.Lock()
	delete(s.polling, rec.ID)
	rec.pollInFlight.Store(false)
	s.mu.Unlock()
}

func (s *Scheduler) poll(rec *Record) {
	log := rec.logger()
	start := time.Now()

	snap, err := s.fetcher.FetchDevice(s.ctx, rec.ID)
	if rec.Removed() || !s.registry.Contains(rec) {
		log.Debugw("poll_result_discarded", "reason", "record removed")
		return
	}
	if err != nil {
		s.failed(rec, err)
		return
	}

	rec.succeeded()
	changed := s.publisher.Publish(rec, snap)
	log.Debugw("poll_succeeded", "changed", changed, "took", time.Since(start).String())
}

func (s *Scheduler) failed(rec *Record, err error) {
	log := rec.logger()
	if s.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}

	switch {
	case errors.Is(err, meater.ErrNotFound):
		if rec.setCookState(CookNotFound) {
			log.Warnw("cook_refresh_disabled", "reason", "device not found", "err", err)
			s.events.Record(s.ctx, models.EventCookDisabled, rec.ID, "cloud returned not found, cook refresh disabled", nil)
			s.publisher.CookRefreshChanged(rec)
		}
		return
	case meater.IsSessionFatal(err):
		log.Errorw("poll_failed", "err", err)
		typ := models.EventAuthError
		if meater.ClassOf(err) == meater.ClassConfig {
			typ = models.EventConfigError
		}
		s.events.Record(s.ctx, typ, rec.ID, err.Error(), nil)
	default:
		log.Warnw("poll_failed", "class", meater.ClassOf(err), "err", err)
		s.events.Record(s.ctx, models.EventPollError, rec.ID, err.Error(), nil)
	}

	failures, skip := rec.failed(s.backoff)
	if s.backoff.Enabled && skip > 0 {
		log.Infow("poll_backoff", "failures", failures, "skip_ticks", skip)
	}
}

// SetCookRefresh switches cook refresh for id. Turning it on polls right away.
func (s *Scheduler) SetCookRefresh(id string, on bool) (DeviceView, error) {
	rec, ok := s.registry.Get(id)
	if !ok {
		return DeviceView{}, ErrUnknownDevice
	}

	target := CookUserDisabled
	eventType, msg := models.EventCookDisabled, "cook refresh switched off"
	if on {
		target = CookActive
		eventType, msg = models.EventCookEnabled, "cook refresh switched on"
	}

	if rec.setCookState(target) {
		rec.logger().Infow("cook_refresh_set", "state", target.String())
		s.events.Record(s.ctx, eventType, id, msg, nil)
		s.publisher.CookRefreshChanged(rec)
	}
	if on {
		rec.succeeded()
		s.Tick(rec)
	}
	return rec.View(), nil
}
