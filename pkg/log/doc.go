/*
Package log provides structured logging for the orchestrator using
zerolog.

It wraps a single global zerolog.Logger, initialized by Init(Config),
with component-scoped child loggers (WithComponent,
WithExecutionID, WithWorkerID, WithWorkloadID, WithClusterID) that
attach the relevant id as a structured field rather than interpolating
it into the message string.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	execLog := log.WithExecutionID(exec.ID)
	execLog.Info().Str("phase", string(exec.Phase)).Msg("entering phase")

# Conventions

Every log call carries structured fields (execution_id, worker_id,
cluster_name, step) instead of building them into the message text, so
log aggregation can filter and group without parsing strings. Messages
are short, lower-case, and state what happened, not why.
*/
package log
