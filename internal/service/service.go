package service

import (
	"context"
	"time"

	"meater_sync/internal/config"
	"meater_sync/internal/logger"
	"meater_sync/internal/models"
	"meater_sync/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Monitoring exposes read-only probe state.
type Monitoring interface {
	ListDevices(ctx context.Context) ([]DeviceView, error)
	GetDevice(ctx context.Context, id string) (DeviceDetail, error)
	StoredStates(ctx context.Context) ([]models.DeviceState, error)
}

// Control exposes the operator actions.
type Control interface {
	SetCookRefresh(ctx context.Context, id string, on bool) (DeviceView, error)
	Sync(ctx context.Context) (ReconcileResult, error)
}

// EventLog exposes the sync log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.SyncEvent, error)
}

// Changes streams presenter updates to live subscribers.
type Changes interface {
	Subscribe() (<-chan Change, func())
}

// Options configure the sync engine.
type Options struct {
	Defaults   Defaults
	Overrides  []config.DeviceOverride
	Backoff    BackoffPolicy
	SigningKey string
	TokenTTL   time.Duration
	// Presenters receive every change next to the state store and the change stream.
	Presenters []Presenter
	// OnEvent, if set, sees the type of every sync log entry.
	OnEvent func(typ string)
}

// Engine is the running synchronization machinery.
type Engine struct {
	Registry    *Registry
	Fetcher     *Fetcher
	Publisher   *Publisher
	Scheduler   *Scheduler
	Reconciler  *Reconciler
	Discovery   *Discovery
	Broadcaster *Broadcaster
	Events      *EventLogService
}

// Run starts discovery and blocks until ctx is canceled, then stops every poll timer.
func (e *Engine) Run(ctx context.Context, discoveryEvery time.Duration) {
	e.Discovery.Run(ctx, discoveryEvery)
	e.Scheduler.Stop()
}

// Service aggregates everything the HTTP layer needs.
type Service struct {
	Monitoring
	Control
	EventLog
	Changes
	Authorization

	Engine *Engine
}

// NewService wires the repositories and the cloud session into a ready engine.
func NewService(repos *repository.Repository, client CloudClient, session Session, opts Options, log *logger.Logger) *Service {
	events := NewEventLogService(repos.EventRepo, log.Named("events"))
	if opts.OnEvent != nil {
		events.OnRecord(opts.OnEvent)
	}
	broadcaster := NewBroadcaster(log.Named("broadcast"))

	presenters := Presenters{NewStatePresenter(repos.StateRepo, log.Named("state")), broadcaster}
	presenters = append(presenters, opts.Presenters...)

	registry := NewRegistry()
	fetcher := NewFetcher(client, session, log.Named("fetcher"))
	publisher := NewPublisher(presenters)
	scheduler := NewScheduler(fetcher, registry, publisher, events, opts.Backoff, log.Named("scheduler"))
	reconciler := NewReconciler(registry, scheduler, presenters, events, opts.Defaults, log.Named("reconciler"))
	discovery := NewDiscovery(fetcher, reconciler, opts.Overrides, events, log.Named("discovery"))

	return &Service{
		Monitoring:    NewMonitoringService(registry, repos.StateRepo),
		Control:       NewControlService(scheduler, discovery),
		EventLog:      events,
		Changes:       broadcaster,
		Authorization: NewAuthService(repos.Auth, opts.SigningKey, opts.TokenTTL),
		Engine: &Engine{
			Registry:    registry,
			Fetcher:     fetcher,
			Publisher:   publisher,
			Scheduler:   scheduler,
			Reconciler:  reconciler,
			Discovery:   discovery,
			Broadcaster: broadcaster,
			Events:      events,
		},
	}
}
