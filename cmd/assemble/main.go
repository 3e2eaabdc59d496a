package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/assemble/assemble/cmd/assemble/commands"
	"github.com/assemble/assemble/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := bootstrapLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "assemble: %v\n", err)
		os.Exit(2)
	}

	// A signal cancels the running build; the executor skips what is left.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, Version, Commit, BuildDate)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// bootstrapLogger installs the global logger used until the workspace
// settings are read. It takes the default telemetry logging section, with
// LOG_LEVEL applied.
func bootstrapLogger() error {
	cfg := telemetry.DefaultConfig().Logging
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Level = lvl
	}
	l, err := telemetry.NewLogger(cfg)
	if err != nil {
		return err
	}
	log.Logger = *l.Zerolog()
	zerolog.SetGlobalLevel(telemetry.ParseLevel(cfg.Level))
	return nil
}
