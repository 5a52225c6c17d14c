package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/nodeflow/cmd/nodeflow/commands"
	"github.com/openfroyo/nodeflow/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		log.Debug().Msg("Shutting down")
	}()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// setupLogging configures the process logger until settings are loaded. NODEFLOW_LOG_LEVEL
// overrides the default; the settings file and --verbose take over once a command starts.
// The level sits on the logger, not globally, so component loggers keep their own.
func setupLogging() {
	level := zerolog.InfoLevel
	if name := os.Getenv("NODEFLOW_LOG_LEVEL"); name != "" {
		level = telemetry.ParseLevel(name)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
