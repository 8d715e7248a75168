/*
Package log provides structured logging for Hodei using zerolog.

The package wraps zerolog to give every component JSON-structured (or
console-formatted) logs with a shared timestamp format and level filtering,
plus helpers for attaching the domain identifiers (job, worker, pool,
execution) that show up across almost every log line in the orchestrator.

# Usage

Initializing the logger, once, in cmd/hodei:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Msg("starting scheduler loop")

Domain-scoped loggers, used wherever a log line needs to be correlated back
to one job, worker, pool or execution:

	jobLog := log.WithJobID(job.ID)
	jobLog.Info().Str("strategy", strategyName).Msg("job scheduled")

	workerLog := log.WithWorkerID(worker.ID)
	workerLog.Warn().Msg("heartbeat missed")

Package-level helpers (log.Info, log.Debug, log.Warn, log.Error, log.Fatal)
write through the global Logger for call sites that don't need a component
or domain scope.

# Design

A single package-level zerolog.Logger, initialized once via Init and read
by every other package, avoids threading a logger through every
constructor. Context loggers (WithComponent, WithJobID, ...) derive a child
logger with one extra field rather than mutating the global instance, so
concurrent callers never race on shared state.
*/
package log
