// Package logging wires zerolog the way cmd/nexus wants it: a console
// writer for interactive TTY runs, JSON otherwise, with every component
// getting its own child logger tagged by name.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var global zerolog.Logger

// Init configures the global zerolog logger. Call once from main.
func Init(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		global = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
		return
	}
	global = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Component returns a child logger tagged with component=name, the
// convention every background loop (adapter, aggregator, detector,
// position manager, allocator, risk manager) logs through.
func Component(name string) zerolog.Logger {
	return global.With().Str("component", name).Logger()
}
