package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/activity"
	"github.com/btouchard/beacon/internal/api"
	"github.com/btouchard/beacon/internal/auth"
	"github.com/btouchard/beacon/internal/broadcast"
	"github.com/btouchard/beacon/internal/config"
	"github.com/btouchard/beacon/internal/engine"
	beaconmcp "github.com/btouchard/beacon/internal/mcp"
	"github.com/btouchard/beacon/internal/notify"
	"github.com/btouchard/beacon/internal/reconcile"
	"github.com/btouchard/beacon/internal/review"
	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
	"github.com/btouchard/beacon/internal/transport"
	"github.com/btouchard/beacon/internal/tunnel"
)

const cleanupInterval = time.Hour

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting beacon",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- SQLite Store ---
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", cfg.Database.Path)

	// --- Status authority and activity ---
	ctrl := task.NewController(db)
	observer := activity.NewObserver(ctrl, cfg.Activity.IdleDelay)
	defer observer.Close()

	// --- Review reconciliation ---
	var poller *reconcile.Poller
	if cfg.Reconcile.Enabled {
		checker := review.NewGHChecker(cfg.Reconcile.GHPath, cfg.Reconcile.GHToken)
		poller = reconcile.NewPoller(db, checker, ctrl, cfg.Reconcile.Interval, cfg.Reconcile.QueryTimeout)
		go poller.Run(ctx)
	}

	// --- Broadcast ---
	registry := broadcast.NewRegistry()
	broadcaster := broadcast.NewBroadcaster(registry, cfg.Broadcast.QueueSize)
	go broadcaster.Run(ctx)
	defer registry.CloseAll()

	eng := engine.New(engine.Deps{
		Store:       db,
		Controller:  ctrl,
		Observer:    observer,
		Poller:      poller,
		Broadcaster: broadcaster,
	})

	// --- MCP Server ---
	mcpServer := beaconmcp.NewServer(&beaconmcp.Deps{
		Engine:  eng,
		Version: version,
	})
	mcpHTTP := server.NewStreamableHTTPServer(mcpServer)

	notifiers := []notify.Notifier{broadcaster, eng}
	if cfg.Notifications.MCP {
		notifiers = append(notifiers, notify.NewMCPNotifier(mcpServer))
	}
	ctrl.SetNotifyFunc(notify.NewHub(notifiers...).Notify)

	// --- Client transport ---
	ws := transport.NewHandler(registry, cfg.Broadcast.HeartbeatInterval, cfg.Broadcast.SendBuffer)
	ws.SetOriginPatterns(cfg.Auth.AllowedOrigins)

	secret, err := auth.NewReloader(cfg.Auth.SecretFile)
	if err != nil {
		return fmt.Errorf("loading secret: %w", err)
	}
	go func() {
		if err := secret.Watch(ctx); err != nil {
			slog.Warn("secret rotation will need a restart", "error", err)
		}
	}()

	// --- HTTP Server ---
	router := api.NewRouter(api.Deps{
		Engine:  eng,
		Secret:  secret,
		WS:      ws,
		MCP:     mcpHTTP,
		Version: version,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go cleanupLoop(ctx, db, cfg.Database.RetentionDays)

	errCh := make(chan error, 2)
	go func() {
		slog.Info("beacon is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Tunnel.Enabled {
		tun := tunnel.NewNgrok(cfg.Tunnel.AuthToken, cfg.Tunnel.Domain)
		url, err := tun.Start(ctx)
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("starting tunnel: %w", err)
		}
		defer func() { _ = tun.Close() }()

		slog.Info("tunnel established",
			"url", url,
			"ws_url", tunnel.WebSocketURL(url))

		go func() {
			if err := tun.Serve(srv); err != nil {
				errCh <- fmt.Errorf("tunnel: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		_ = srv.Close()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	registry.CloseAll()
	return srv.Shutdown(shutdownCtx)
}

// cleanupLoop prunes old audit events. A non-positive retention disables it.
func cleanupLoop(ctx context.Context, db store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	prune := func() {
		if err := db.Cleanup(retention); err != nil {
			slog.Warn("event cleanup failed", "error", err)
		}
	}
	prune()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
