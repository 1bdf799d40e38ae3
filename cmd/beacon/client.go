package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/btouchard/beacon/internal/auth"
	"github.com/btouchard/beacon/internal/claim"
	"github.com/btouchard/beacon/internal/hook"
	"github.com/btouchard/beacon/internal/tunnel"
	"github.com/btouchard/beacon/internal/watch"
)

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	taskID := fs.String("task", "", "also stream activity for this task")
	desktop := fs.Bool("desktop", false, "show desktop notifications")
	url := fs.String("url", "", "server WebSocket URL (default: derived from config)")
	verbose := fs.Bool("v", false, "verbose logging")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	setupClientLogging(cfg, *verbose)

	secret, err := auth.ReadSecret(cfg.Auth.SecretFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading secret: %v\n", err)
		os.Exit(1)
	}

	claims, err := claim.NewFileStore(cfg.Claims.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening claim store: %v\n", err)
		os.Exit(1)
	}

	wsURL := *url
	if wsURL == "" {
		wsURL = tunnel.WebSocketURL(strings.TrimRight(localURL(cfg), "/"))
	}

	alerter := watch.Multi{watch.Bell{Out: os.Stdout}}
	if *desktop || cfg.Notifications.Desktop {
		alerter = append(alerter, watch.NewDesktop())
	}

	w := watch.New(watch.Options{
		URL:     wsURL,
		Token:   secret,
		TaskID:  *taskID,
		Claimer: claim.NewDeduplicator(claims, cfg.Claims.SettleWindow, cfg.Claims.TTL),
		Gate:    claim.NewSoundGate(claims, cfg.Claims.SoundInterval, cfg.Claims.SoundSettle),
		Alerter: alerter,
		Out:     os.Stdout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		os.Exit(1)
	}
}

// cmdHook runs as an agent hook. It always exits 0 so a missing or
// unreachable server never blocks the agent.
func cmdHook(args []string) {
	fs := flag.NewFlagSet("hook", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	taskID := fs.String("task", os.Getenv("BEACON_TASK_ID"), "task the session works on (default $BEACON_TASK_ID)")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "beacon hook: configuration error: %v\n", err)
		return
	}
	setupClientLogging(cfg, false)

	if *taskID == "" {
		slog.Debug("no task bound to this session, ignoring hook")
		return
	}

	payload, err := hook.ReadPayload(os.Stdin)
	if err != nil {
		slog.Warn("unreadable hook payload", "error", err)
		return
	}

	ev, ok := hook.Map(*taskID, payload)
	if !ok {
		slog.Debug("hook event not relevant", "event", payload.HookEventName)
		return
	}

	secret, err := auth.ReadSecret(cfg.Auth.SecretFile)
	if err != nil {
		slog.Warn("no secret, cannot report activity", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := hook.NewPoster(localURL(cfg), secret).Post(ctx, ev); err != nil {
		slog.Warn("failed to report activity", "task_id", ev.TaskID, "kind", ev.Kind, "error", err)
	}
}
