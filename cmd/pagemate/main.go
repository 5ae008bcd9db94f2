package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/hbruyere/pagemate/internal/config"
	"github.com/hbruyere/pagemate/internal/httpapi"
	. "github.com/hbruyere/pagemate/internal/logging"
	"github.com/hbruyere/pagemate/internal/settings"
)

const version = "0.2.0"

var cli struct {
	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the pagemate service."`
	Version VersionCmd `cmd:"" help:"Print the version."`

	Config   string `short:"c" placeholder:"PATH" help:"Config file (TOML). Defaults to ~/.pagemate/pagemate.toml."`
	LogLevel string `help:"Override log level (trace, debug, info, warn, error)."`
}

// ServeCmd runs the HTTP control surface and the settings watcher.
type ServeCmd struct {
	Listen string `help:"Override listen address."`
}

func (cmd *ServeCmd) Run() error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cmd.Listen != "" {
		cfg.Listen = cmd.Listen
	}

	level := cfg.LogLevel
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	Init(&Config{Level: ParseLevel(level), TimeFormat: "15:04:05"})

	L_info("pagemate %s starting", version)

	store := settings.NewStore(cfg.StateDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Live-update propagation for settings edited by other instances.
	if err := store.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch settings: %w", err)
	}

	srv := httpapi.NewServer(cfg.Listen, store, cfg.Extract)
	if err := srv.Start(); err != nil {
		return err
	}

	L_info("pagemate ready", "listen", cfg.Listen, "settings", store.Path())

	<-ctx.Done()
	L_info("pagemate shutting down")
	return srv.Stop()
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (cmd *VersionCmd) Run() error {
	fmt.Printf("pagemate %s\n", version)
	return nil
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("pagemate"),
		kong.Description("Page companion: chat sidebar with page context extraction."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(); err != nil {
		L_error("pagemate failed", "error", err)
		os.Exit(1)
	}
}
