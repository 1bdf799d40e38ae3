package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/btouchard/beacon/internal/auth"
	"github.com/btouchard/beacon/internal/config"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	case "hook":
		cmdHook(os.Args[2:])
	case "check":
		cmdCheck(os.Args[2:])
	case "rotate-secret":
		cmdRotateSecret(os.Args[2:])
	case "version":
		fmt.Printf("beacon %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: beacon <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve          Start the Beacon server\n")
	fmt.Fprintf(os.Stderr, "  watch          Follow task events in this terminal\n")
	fmt.Fprintf(os.Stderr, "  hook           Forward an agent hook payload (stdin) to the server\n")
	fmt.Fprintf(os.Stderr, "  check          Validate configuration\n")
	fmt.Fprintf(os.Stderr, "  rotate-secret  Replace the local access secret\n")
	fmt.Fprintf(os.Stderr, "  version        Print version\n")
}

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	_, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration is valid")
}

func cmdRotateSecret(args []string) {
	fs := flag.NewFlagSet("rotate-secret", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if _, err := auth.RotateSecret(cfg.Auth.SecretFile); err != nil {
		fmt.Fprintf(os.Stderr, "rotating secret: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("secret rotated: %s\n", cfg.Auth.SecretFile)
	fmt.Println("a running server picks it up automatically; reconnect watchers")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func setupLogging(cfg *config.Config) {
	level := parseLevel(cfg.Server.LogLevel)

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	slog.SetDefault(slog.New(slog.NewMultiHandler(handlers...)))
}

// setupClientLogging keeps stdout for user-facing output.
func setupClientLogging(cfg *config.Config, verbose bool) {
	level := parseLevel(cfg.Server.LogLevel)
	if !verbose && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// localURL is the base URL a client on this machine uses to reach the server.
func localURL(cfg *config.Config) string {
	if cfg.Server.PublicURL != "" {
		return cfg.Server.PublicURL
	}
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}
