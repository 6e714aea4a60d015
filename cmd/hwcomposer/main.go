// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// hwcomposer drives the displays of one DRM device. It discovers the
// connected outputs, binds the best commit path each supports (full
// display state, atomic, or legacy page flip), and presents frames
// until SIGINT or SIGTERM.
//
// Configuration comes from the YAML file named by --config or
// HWC_CONFIG. Runtime options such as "nuclear" are persisted in the
// registry file between runs.
//
// With --pattern, each display shows a cycling colour pattern drawn
// into kernel dumb buffers, which exercises the full release path
// without an external producer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hwcomposer/lib/composer"
	"github.com/bureau-foundation/hwcomposer/lib/config"
	"github.com/bureau-foundation/hwcomposer/lib/drm"
	"github.com/bureau-foundation/hwcomposer/lib/option"
	"github.com/bureau-foundation/hwcomposer/lib/registry"
	"github.com/bureau-foundation/hwcomposer/lib/timeline"
	"github.com/bureau-foundation/hwcomposer/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		devicePath  string
		logLevel    string
		pattern     bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("hwcomposer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to hwcomposer.yaml (default: $HWC_CONFIG)")
	flagSet.StringVar(&devicePath, "device", "", "DRM card node, overriding device.path")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error, overriding log.level")
	flagSet.BoolVar(&pattern, "pattern", false, "show a test pattern on every display")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print(os.Stdout, "hwcomposer")
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if devicePath != "" {
		cfg.Device.Path = devicePath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("hwcomposer starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"device", cfg.Device.Path,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	card, err := drm.Open(cfg.Device.Path, logger)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.Device.Path, err)
	}
	defer card.Close()

	store := registry.New(registry.Options{
		Path:      cfg.Registry.Path,
		SaveDelay: cfg.Registry.SaveDelay,
		Logger:    logger,
	})
	options := registerOptions(cfg, store, logger)

	var openTimeline timeline.Opener
	if cfg.Device.SWSync {
		openTimeline = timeline.OpenSWSync
	}

	comp, err := composer.New(composer.Config{
		Card:         card,
		Options:      options,
		Registry:     store,
		OpenTimeline: openTimeline,
		Logger:       logger,
		FlipTimeout:  cfg.Flip.FlipTimeout,
		SyncTimeout:  cfg.Flip.SyncTimeout,
		Strict:       cfg.Flip.Strict,
		QueueDepth:   cfg.Flip.QueueDepth,
	})
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("closing registry failed", "error", closeErr)
		}
		return err
	}

	var patterns *composer.Pattern
	if pattern {
		patterns = comp.StartPattern(ctx)
	}

	err = comp.Run(ctx)
	if patterns != nil {
		patterns.Wait()
	}
	logger.Info("hwcomposer stopped")
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// registerOptions declares the runtime options with their defaults,
// taking config overrides into account. Persistent options read their
// saved value from the registry.
func registerOptions(cfg *config.Config, store option.Store, logger *slog.Logger) *option.Set {
	options := option.NewSet(store, logger)
	defaults := []struct {
		name         string
		defaultValue int64
		persistent   bool
	}{
		{option.PlaneAlloc, 1, false},
		{option.Nuclear, 1, true},
	}
	for _, d := range defaults {
		value := d.defaultValue
		if configured, ok := cfg.Options[d.name]; ok {
			value = configured
		}
		options.Register(d.name, value, d.persistent)
	}
	for name := range cfg.Options {
		if options.Find(name) == nil {
			logger.Warn("ignoring unknown option in configuration", "option", name)
		}
	}
	return options
}
