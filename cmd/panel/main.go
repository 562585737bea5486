package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ride-sync/internal/api"
	"github.com/example/ride-sync/internal/config"
	"github.com/example/ride-sync/internal/dispatch"
	"github.com/example/ride-sync/internal/gateway"
	"github.com/example/ride-sync/internal/history"
	httpapi "github.com/example/ride-sync/internal/http"
	"github.com/example/ride-sync/internal/ingest"
	"github.com/example/ride-sync/internal/logging"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/observability"
	"github.com/example/ride-sync/internal/realtime"
	"github.com/example/ride-sync/internal/session"
	"github.com/example/ride-sync/internal/storage"
	"github.com/example/ride-sync/internal/views"
)

func main() {
	cfg, err := config.LoadPanelConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.Role)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("panel stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.PanelConfig, logger *slog.Logger) error {
	store := openSessionStore(ctx, cfg, logger)
	if c, ok := store.(*session.RedisStore); ok {
		defer c.Close()
	}

	gate := session.NewGate(store, logger)
	if err := gate.Hydrate(ctx); err != nil {
		logger.Warn("session hydration failed", "error", err)
	}
	seedSession(ctx, gate, cfg)

	client := api.NewClient(cfg.APIBaseURL, gate, cfg.CommandTimeout)
	runner := gateway.NewRunner(logger, gateway.LogOnly)
	page := api.Page{Page: cfg.HistoryPage, Limit: cfg.HistoryLimit}

	var mirror storage.Mirror
	if cfg.PGDSN != "" {
		pm, err := storage.NewPostgresMirror(cfg.PGDSN)
		if err != nil {
			logger.Warn("history mirror unavailable", "error", err)
		} else {
			defer pm.Close()
			mirror = pm
		}
	}

	var tap ingest.Tap = ingest.NopTap{}
	if len(cfg.KafkaBrokers) > 0 {
		tap = ingest.NewKafkaTap(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("event tap enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer tap.Close()

	ch := realtime.NewChannel(cfg.WSURL, logger)
	live := dispatch.NewHub(logger)
	observability.LiveClients(live.Len)
	defer live.Close()

	deps := httpapi.Deps{
		Session:  gate,
		Live:     live,
		Ready:    func() bool { return gate.Hydrated() && ch.Connected() },
		Location: models.Location{Lat: cfg.DriverLat, Lon: cfg.DriverLon},
		Logger:   logger,
	}

	var (
		apply     realtime.Sink
		startView func(context.Context) error
		closeView func()
	)
	switch cfg.Role {
	case config.RoleDriver:
		v := views.NewDriverView(views.DriverDeps{
			Commands:  gateway.NewDriver(client, runner),
			Session:   gate,
			Store:     store,
			History:   history.NewLoader(storage.SubjectDriver, client.DriverEvents, page, mirror, logger),
			Connected: ch.Connected,
			Logger:    logger,
		})
		apply, startView, closeView = v.HandleNotification, v.Start, v.Close
		deps.Driver = v
	default:
		v := views.NewRiderView(views.RiderDeps{
			Commands:       gateway.NewRider(client, runner),
			Session:        gate,
			History:        history.NewLoader(storage.SubjectRide, client.RideEvents, page, mirror, logger),
			RidesLimit:     cfg.RidesLimit,
			RefreshOnEvent: cfg.RiderRefreshOnEvent,
			Connected:      ch.Connected,
			Logger:         logger,
		})
		apply, startView, closeView = v.HandleNotification, v.Start, v.Close
		deps.Rider = v
	}
	defer closeView()

	sink := func(n models.Notification) {
		apply(n)
		live.Broadcast(n)
		var driverID string
		if cfg.Role == config.RoleDriver {
			driverID = gate.DriverID()
		}
		if err := tap.Publish(ctx, ingest.NewRecord(n, driverID)); err != nil {
			logger.Warn("tap publish failed", "kind", n.Kind, "error", err)
		}
	}

	go startWhenReady(ctx, gate, startView, logger)
	sup := realtime.NewSupervisor(ch, gate, cfg.ReconnectMin, cfg.ReconnectMax, logger)
	go sup.Run(ctx, sink)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("panel listening", "addr", cfg.HTTPAddr, "role", cfg.Role)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openSessionStore prefers Redis when configured and reachable.
func openSessionStore(ctx context.Context, cfg config.PanelConfig, logger *slog.Logger) session.Store {
	if cfg.RedisAddr == "" {
		return session.NewMemoryStore()
	}
	rs := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionKeyPrefix, cfg.SessionTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, keeping the session in memory", "addr", cfg.RedisAddr, "error", err)
		_ = rs.Close()
		return session.NewMemoryStore()
	}
	return rs
}

// seedSession fills an empty session from SESSION_* variables so the panel
// can run without a login flow.
func seedSession(ctx context.Context, gate *session.Gate, cfg config.PanelConfig) {
	if cfg.SeedToken == "" || gate.Token() != "" {
		return
	}
	gate.SetToken(ctx, cfg.SeedToken)
	if cfg.SeedUserID != "" && gate.Snapshot().User == nil {
		gate.SetUser(ctx, &models.User{ID: cfg.SeedUserID})
	}
	gate.SetIsDriver(ctx, cfg.SeedIsDriver || cfg.Role == config.RoleDriver)
}

// startWhenReady starts the role view once the session is authenticated.
func startWhenReady(ctx context.Context, gate *session.Gate, start func(context.Context) error, logger *slog.Logger) {
	for {
		watch := gate.Watch()
		if gate.Ready() {
			if err := start(ctx); err != nil {
				logger.Error("role view failed to start", "error", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-watch:
		}
	}
}
