// Package logging builds the shared zerolog logger for the collector
// processes. Events carry {time, level, message, device_id, error} and are
// written to the console plus an optional log file.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvhome/house_energy_monitor/pkg/config"
)

// Setup returns a logger configured from cfg. An unknown level falls back
// to info rather than failing, a bad log file path degrades to console-only.
func Setup(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var writer zerolog.LevelWriter
	if cfg.File != "" {
		f, ferr := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if ferr == nil {
			writer = zerolog.MultiLevelWriter(console, f)
		}
	}
	if writer == nil {
		writer = zerolog.MultiLevelWriter(console)
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
