/*
Package log provides structured logging for Zaichik using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	import "github.com/raventid/zaichik/pkg/log"

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
	})

Simple logging:

	log.Info("Broker listening")
	log.Debug("Decoding frame")
	log.Error("Failed to accept connection")

Structured logging:

	log.Logger.Info().
		Str("topic", "orders").
		Uint64("sequence", seq).
		Msg("Message published")

Context loggers:

	connLog := log.WithConnID(connID)
	connLog.Debug().Msg("Subscription added")

	topicLog := log.WithTopic("orders")
	topicLog.Info().Msg("Topic created")

# Integration Points

This package integrates with:

  - pkg/server: Logs connection lifecycle and accept-loop errors
  - pkg/subscription: Logs per-connection command handling
  - pkg/topic: Logs publishes and retention eviction at debug level
  - pkg/registry: Logs topic creation
  - cmd/zaichik: Initializes the logger from CLI flags

# Best Practices

Do:
  - Use Info level in production
  - Use structured fields for queryable data (.Str, .Uint64, .Err)
  - Create component loggers with WithComponent, WithTopic, WithConnID
  - Log transport errors at debug level (they are routine)

Don't:
  - Log message payloads (opaque client data)
  - Use Debug level in production
  - Concatenate strings into messages (use typed fields)
*/
package log
