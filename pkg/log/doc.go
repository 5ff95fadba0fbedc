/*
Package log provides structured logging for SNAS using zerolog.

It wraps zerolog to give every component a JSON-structured (or
human-readable console) logger with a configurable level, plus helpers for
attaching the context fields SNAS cares about: which component emitted a
line, which connection or username it concerns.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	busLog := log.WithComponent("bus")
	busLog.Info().Str("action", "verify").Msg("dispatching request")

	connLog := log.WithConnID(connID)
	connLog.Debug().Msg("accepted connection")

# Context Loggers

  - WithComponent: tag logs from a package/subsystem ("credstore", "bus", "socket")
  - WithConnID: tag logs from a single socket connection's lifetime
  - WithUsername: tag logs from a request naming an account

Never log a secure.String or secure.Bytes value directly — their default
String()/MarshalJSON behavior already redacts, but callers should still
prefer logging only the username, not request bodies, to avoid depending on
that redaction as the only safety net.

# Output

JSON (production):

	{"level":"info","component":"bus","action":"verify","time":"...","message":"dispatching request"}

Console (development): single-line, colorized, human-readable — the same
zerolog.ConsoleWriter format used for local debugging.
*/
package log
