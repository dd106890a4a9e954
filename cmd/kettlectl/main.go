package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/kettle/internal/config"
	"github.com/danmuck/kettle/internal/engines"
	"github.com/danmuck/kettle/internal/logging"
	"github.com/danmuck/kettle/internal/observability"
	"github.com/danmuck/kettle/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	observability.InitLogger("kettlectl")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "kettlectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("kettlectl", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath := fs.String("config", "", "path to a .toml or .yaml config file (defaults are used when empty)")
	printConfig := fs.Bool("print-config", false, "print the effective config as TOML and exit")
	validate := fs.Bool("validate", false, "validate the config and exit")
	engine := fs.String("engine", "", "engine name, overrides the config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *engine != "" {
		cfg.Engine = *engine
	}
	factory, err := engines.Lookup(cfg.Engine)
	if err != nil {
		return err
	}
	if *printConfig {
		return config.WriteTOML(stdout, cfg)
	}
	if *validate {
		fmt.Fprintf(stdout, "config ok: %s\n", displayPath(*configPath))
		return nil
	}

	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok && os.Getenv(logging.EnvLogLevel) == "" {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Info().
		Str("config", displayPath(*configPath)).
		Str("name", cfg.Name).
		Str("engine", cfg.Engine).
		Msg("kettlectl starting")

	svc := server.NewService(cfg, factory)
	if err := svc.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("kettlectl stopped")
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func displayPath(path string) string {
	if path == "" {
		return "<defaults>"
	}
	return path
}
