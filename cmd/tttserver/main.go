// Command tttserver runs the Tic-Tac-Toe match server.
//
// Usage:
//
//	tttserver -p 4000
//	tttserver -p 4000 -config config/server.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/udisondev/tttserver/internal/config"
	"github.com/udisondev/tttserver/internal/server"
)

const defaultConfigPath = "config/server.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	signal.Ignore(syscall.SIGPIPE)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tttserver", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	port := fs.Int("p", 0, "port to listen on (required)")
	configPath := fs.String("config", defaultConfigPath, "path to a YAML config file (optional)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stdout, "usage: tttserver -p <port> [-config <path>]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *port == 0 {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Port = *port

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("tttserver starting", "bind", cfg.BindAddress, "port", cfg.Port, "max_clients", cfg.MaxClients)

	s := server.New(cfg)
	return s.Run(ctx)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
