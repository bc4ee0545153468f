// @title           MEATER sync API
// @version         1.0
// @description     Mirrors MEATER cloud probes locally and exposes them over HTTP, WebSocket, MQTT and Prometheus.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "meater_sync/docs"
	"meater_sync/internal/config"
	"meater_sync/internal/handlers"
	"meater_sync/internal/logger"
	"meater_sync/internal/meater"
	"meater_sync/internal/metrics"
	"meater_sync/internal/models"
	"meater_sync/internal/mqtt"
	"meater_sync/internal/repository"
	"meater_sync/internal/repository/db"
	"meater_sync/internal/server"
	"meater_sync/internal/service"
	"meater_sync/internal/session"

	"github.com/spf13/cobra"
)

// version is reported as the default probe firmware and set at build time.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:           "meater-sync",
		Short:         "Keep MEATER cloud probes in sync with local consumers",
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON config file")
	cmd.Flags().BoolVarP(&debug, "debug", "D", false, "enable debug logging for every component")
	return cmd
}

func run(parent context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.Get(logger.LevelFor(debug, cfg.Options.Logging))
	defer func() { _ = log.Sync() }()

	sqlDB, err := openDB(cfg.DB, log)
	if err != nil {
		log.Errorw("failed to init sqlite", "err", err)
		return err
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	presenters := []service.Presenter{collector}
	if cfg.MQTT.Enabled {
		mc, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			// Keep syncing without MQTT; the other presenters still work.
			log.Errorw("mqtt_connect_failed", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			defer mc.Close()
			presenters = append(presenters, mqtt.NewPresenter(mc, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, log.Named("mqtt")))
		}
	}

	// wire dependencies
	client := meater.NewClient(cfg.Options.Endpoint, nil)
	sess := session.NewManager(session.Credentials{
		Email:    cfg.Credentials.Email,
		Password: cfg.Credentials.Password,
		Token:    cfg.Credentials.Token,
	}, client, config.NewTokenStore(configPath), log.Named("session"))
	defer sess.Close()

	repos := repository.NewRepository(sqlDB)
	services := service.NewService(repos, client, sess, service.Options{
		Defaults: service.Defaults{
			RefreshRateSeconds: cfg.Options.RefreshRate,
			Firmware:           version,
			Logging:            cfg.Options.Logging,
		},
		Overrides: cfg.Options.Devices,
		Backoff: service.BackoffPolicy{
			Enabled: cfg.Options.Backoff.Enabled,
			MaxSkip: cfg.Options.Backoff.MaxSkip,
		},
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
		Presenters: presenters,
		OnEvent:    collector.EventObserved,
	}, log)

	sess.OnLogin(func(string) {
		collector.LoginObserved()
		services.Engine.Events.Record(ctx, models.EventTokenRefreshed, "", "logged in to the MEATER cloud", nil)
	})

	apiHandler := handlers.NewHandler(services, log.Named("http"), handlers.WithMetrics(collector.Handler()))
	srv := server.New(cfg.Server.Port, apiHandler.InitRoutes())
	runHTTPServer(srv, log, stop)

	discoveryEvery := time.Duration(cfg.Options.DiscoveryRate) * time.Second
	log.Infow("sync_started", "addr", srv.Addr(), "discovery_every", discoveryEvery, "version", version)
	// blocks until a signal arrives
	services.Engine.Run(ctx, discoveryEvery)

	return shutdown(srv, log)
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg config.DB, log *logger.Logger) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "meater.db")
		path = "meater.db"
	}
	return db.InitDB(path)
}

// runHTTPServer runs the HTTP server in a separate goroutine. A failing
// listener stops the whole process.
func runHTTPServer(srv *server.Server, log *logger.Logger, stop context.CancelFunc) {
	go func() {
		if err := srv.Run(); err != nil {
			log.Errorw("error starting server", "err", err)
			stop()
		}
	}()
}

// shutdown lets in-flight requests complete.
func shutdown(srv *server.Server, log *logger.Logger) error {
	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
		return err
	}
	return nil
}
