/*
Package log provides structured logging for MOZAIC using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
context-specific child loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

MOZAIC's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Context Loggers                   │          │
	│  │  - WithComponent("gamemanager")              │          │
	│  │  - WithReactor(id)                           │          │
	│  │  - WithGame(gameID)                          │          │
	│  │  - WithPlayer(playerID)                      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "gamemanager",              │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "game started"                │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF game started component=gamemanager │      │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all MOZAIC packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add a component name to all logs
  - WithReactor: Tag logs with a reactor's id
  - WithGame: Tag logs with a game manager's numeric game id
  - WithPlayer: Tag logs with a player id

# Usage

Initializing the Logger:

	import "github.com/mozaicserver/mozaic/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("broker started")
	log.Debug("checking reactor liveness")
	log.Warn("step lock timed out, flushing partial turn")
	log.Error("failed to spawn client controller")
	log.Fatal("cannot bind client endpoints") // exits process

Structured Logging:

	log.Logger.Info().
		Uint64("game_id", gameID).
		Int("players", len(roster)).
		Msg("game started")

	log.Logger.Error().
		Err(err).
		Str("reactor_id", id.String()).
		Msg("link handler panicked")

Context Loggers:

	gmLog := log.WithComponent("gamemanager")
	gmLog.Info().Msg("starting inner task")

	gameLog := log.WithGame(gameID)
	gameLog.Info().Msg("roster assembled")

	playerLog := log.WithPlayer(playerID)
	playerLog.Warn().Msg("client controller reconnecting")

# Integration Points

This package integrates with:

  - pkg/reactor: logs dropped messages at trace level and a spawn on an
    already connected id
  - pkg/gamemanager: logs each spawned game and requests sent to a dead
    runner
  - pkg/clientmanager: logs player connections, unknown keys, and closed
    controllers it has no entry for
  - pkg/logsink: persists per-game LogEntry records to disk
  - cmd/mozaic: logs process startup and shutdown

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create context-specific loggers with WithComponent/WithReactor/WithGame/WithPlayer
  - Log errors with .Err() for stack traces

Don't:
  - Log sensitive data (connection secrets, tokens)
  - Use Debug level in production
  - Concatenate strings (use .Str, .Uint64)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
