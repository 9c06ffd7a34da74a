package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/application/notification"
	"github.com/jerson21/santitelas-frontend-sub003/internal/application/transfersync"
	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/cache"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/config"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/desktop"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/logger"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/pendingapi"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/persistence"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/scheduler"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/telemetry"
	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/transport"
	"github.com/jerson21/santitelas-frontend-sub003/internal/interfaces/http/handler"
	"github.com/jerson21/santitelas-frontend-sub003/internal/interfaces/http/router"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const windowTitle = "Administrador"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if err := run(cfg, log); err != nil {
		log.Error("transfer-sync stopped with error", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	identity, err := transfersync.ResolveIdentity(transfersync.Identity{
		Usuario: cfg.Admin.Usuario,
		Rol:     cfg.Admin.Rol,
	}, cfg.Server.Token)
	if err != nil {
		return err
	}
	_, log = logger.WithAdmin(ctx, log, identity.Usuario)

	log.Info("Starting transfer sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("rol", identity.Rol),
	)

	// Metrics
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		PrometheusEnabled: cfg.Telemetry.PrometheusEnabled,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics shutdown failed", zap.Error(err))
		}
	}()
	metrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  mp.Meter("transfer-sync"),
		Logger: log,
	})
	if err != nil {
		return err
	}

	store := transfersync.NewStore(log, transfersync.WithTombstoneTTL(cfg.Store.TombstoneTTL))

	// Push channel
	tcfg := transport.DefaultConfig(cfg.Server.SocketURL)
	tcfg.ConnectTimeout = cfg.Transport.ConnectTimeout
	tcfg.MaxReconnectAttempts = cfg.Transport.MaxReconnectAttempts
	tcfg.InitialDelay = cfg.Transport.ReconnectInitialDelay
	tcfg.MaxDelay = cfg.Transport.ReconnectMaxDelay
	tcfg.PongWait = cfg.Transport.PongWait
	tcfg.WriteWait = cfg.Transport.WriteWait
	tcfg.MaxMessageBytes = cfg.Transport.MaxMessageBytes
	manager, err := transport.NewManager(tcfg, log,
		transport.WithReconnectHook(metrics.ReconnectScheduled),
		transport.WithStateHook(func(s transport.State) {
			metrics.ConnectionChanged(s == transport.StateConnected)
		}),
	)
	if err != nil {
		return err
	}

	// Poll fallback
	api, err := pendingapi.NewClient(pendingapi.Config{
		BaseURL: cfg.Server.APIBaseURL,
		Token:   cfg.Server.Token,
		Timeout: cfg.Poll.Timeout,
	}, log)
	if err != nil {
		return err
	}
	poller, err := scheduler.NewPollFallbackScheduler(scheduler.PollFallbackConfig{
		Interval: cfg.Poll.Interval,
		Timeout:  cfg.Poll.Timeout,
	}, api, store, manager.IsConnected, log, scheduler.WithPollObserver(metrics))
	if err != nil {
		return err
	}

	var closers []io.Closer

	lock, err := newDecisionLock(ctx, cfg)
	if err != nil {
		return err
	}
	closers = append(closers, lock)

	dispatcherOpts := []transfersync.DispatcherOption{transfersync.WithDecisionObserver(metrics)}
	var journal validation.DecisionJournal
	if cfg.Journal.Enabled {
		db, err := persistence.NewDatabase(cfg.Journal, log)
		if err != nil {
			_ = lock.Close()
			return err
		}
		closers = append(closers, db)
		gj := persistence.NewGormDecisionJournal(db.DB)
		journal = gj
		dispatcherOpts = append(dispatcherOpts, transfersync.WithJournal(gj))
		log.Info("Decision journal enabled", zap.String("driver", db.Driver()))
	}

	dispatcher := transfersync.NewDispatcher(transfersync.DispatcherConfig{
		Admin:   identity.Usuario,
		Timeout: cfg.Decision.Timeout,
		LockTTL: cfg.Decision.LockTTL,
	}, store, manager, lock, log, dispatcherOpts...)

	var bellOut io.Writer
	if cfg.Notification.BellEnabled {
		bellOut = os.Stdout
	}
	notifier := notification.NewCoordinator(notification.Config{
		BannerDuration:   cfg.Notification.BannerDuration,
		PanelExpandDelay: cfg.Notification.PanelExpandDelay,
		DesktopEnabled:   cfg.Notification.DesktopEnabled,
		Locale:           cfg.Notification.Locale,
	}, desktop.Sinks(log, cfg.Notification.DesktopEnabled, bellOut, os.Stdout, windowTitle), log)

	client, err := transfersync.NewSyncClient(identity, cfg.Server.Token, transfersync.ClientDeps{
		Transport:  manager,
		Store:      store,
		Dispatcher: dispatcher,
		Poller:     poller,
		Notifier:   notifier,
		Journal:    journal,
		Listeners:  []transfersync.Listener{metrics.OnStoreChange},
		Closers:    closers,
	}, log)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("Sync client teardown reported errors", zap.Error(err))
		}
	}()

	var srv *http.Server
	if cfg.HTTP.Enabled {
		srv = newHTTPServer(cfg, log, client, mp)
		go func() {
			log.Info("Control API listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Control API failed", zap.Error(err))
			}
		}()
	}

	runErr := client.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	log.Info("Shutting down transfer sync...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Control API forced to shutdown", zap.Error(err))
		}
	}
	return runErr
}

func newDecisionLock(ctx context.Context, cfg *config.Config) (interface {
	validation.DecisionLock
	io.Closer
}, error) {
	if cfg.Decision.LockBackend == "redis" {
		return cache.NewRedisDecisionLock(ctx, cache.RedisConfig{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	}
	return cache.NewInMemoryDecisionLock(), nil
}

func newHTTPServer(cfg *config.Config, log *zap.Logger, client *transfersync.SyncClient, mp *telemetry.MeterProvider) *http.Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.NewEngine(log, router.Handlers{
		Validation: handler.NewValidationHandler(client),
		System:     handler.NewSystemHandler(cfg.App.Name, version, client),
		Metrics:    mp.Handler(),
	})
	return &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
}
