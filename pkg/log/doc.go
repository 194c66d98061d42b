/*
Package log provides structured logging for vm-state using zerolog.

The log package wraps the zerolog library to provide structured diagnostics
with component-specific loggers and configurable log levels. Operator-facing
command output is printed by cmd/vm-state directly; this logger carries the
diagnostic trail underneath it (backend commands executed, parse fallbacks,
journal and metrics write failures) and always writes to stderr by default
so that stdout stays parseable.

# Architecture

	┌──────────────────── LOGGING SYSTEM ───────────────────┐
	│                                                         │
	│  ┌───────────────────────────────────────────┐         │
	│  │            Global Logger                   │         │
	│  │  - Zerolog instance                        │         │
	│  │  - Initialized via log.Init()              │         │
	│  │  - Usable before Init (stderr, info)       │         │
	│  └──────────────────┬────────────────────────┘         │
	│                     │                                   │
	│  ┌──────────────────▼────────────────────────┐         │
	│  │         Component Loggers                  │         │
	│  │  - WithComponent("dataset")                │         │
	│  │  - WithSlot("slot2")                       │         │
	│  │  - WithState("ubuntu-base")                │         │
	│  └───────────────────────────────────────────┘         │
	└─────────────────────────────────────────────────────┘

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Component loggers:

	logger := log.WithComponent("dataset")
	logger.Debug().Str("cmd", "zfs list").Msg("running backend command")

	slotLog := log.WithSlot("slot2")
	slotLog.Info().Str("state", "dev-env").Msg("assignment updated")

# Integration Points

This package integrates with:

  - pkg/dataset: Logs every backend command and parse degradation
  - pkg/state: Logs lifecycle operations and symlink rebinding
  - pkg/vmctl: Logs unit start/stop requests
  - pkg/journal, pkg/metrics: Logs best-effort write failures
  - cmd/vm-state: Initializes from --verbose and config

# Design Notes

Structured fields only; never concatenate values into the message. Debug
level is reserved for backend command traces, which is what an operator
raises first when a zfs invocation misbehaves.
*/
package log
