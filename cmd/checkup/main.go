package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/checkupjs/checkup/cmd/checkup/commands"
	"github.com/checkupjs/checkup/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	level := logLevel()
	setupLogging(level)

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	code := commands.Execute(ctx, commands.BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		LogLevel:  level,
	})
	cancel()
	os.Exit(code)
}

// logLevel reads CHECKUP_LOG_LEVEL, falling back to LOG_LEVEL. Checkup is
// quiet by default so reports are not interleaved with logs.
func logLevel() string {
	if level := os.Getenv("CHECKUP_LOG_LEVEL"); level != "" {
		return level
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return "warn"
}

// setupLogging configures zerolog for structured logging
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(telemetry.ParseLogLevel(level))
}
