/*
Package log provides structured logging for burrow using zerolog.

The package wraps a single global zerolog.Logger. It is silent until Init is
called, which keeps library use and tests quiet; the burrow CLI calls Init
from its root command before any subcommand runs.

# Architecture

	┌──────────────────── LOGGING ─────────────────────────┐
	│                                                        │
	│  log.Init(Config) ──► global Logger                    │
	│                          │                             │
	│          ┌───────────────┼────────────────┐            │
	│          ▼               ▼                ▼            │
	│   WithComponent   WithSubscriptionID    WithPID        │
	│   ("notify")      (child, id field)     (child)        │
	│                                                        │
	│  Output: console (default) or JSON lines               │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel("debug"),
		JSONOutput: false,
		Output:     os.Stderr,
	})

	logger := log.WithComponent("notify")
	logger.Info().Uint32("subscription_id", 7).Msg("subscription registered")

Per-request context is layered on component loggers:

	reqLog := log.WithPID(log.WithComponent("notify"), 4242)
	reqLog.Warn().Err(err).Msg("payload rejected")

# Levels

  - debug: matcher decisions, individual watcher events
  - info: registrations, removals, broker start/stop
  - warn: rejected payloads, unreachable delivery targets, dropped tickets
  - error: the request loop or the metrics endpoint exiting unexpectedly
*/
package log
