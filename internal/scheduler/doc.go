// Package scheduler provides the in-process job scheduler driving the
// periodic notification work.
//
// # Overview
//
// Jobs are registered under a logical name (e.g. "queue.drain",
// "compliance.weekly"). Names are stable and human readable so jobs can be
// replaced (upserted), rescheduled, and cancelled deterministically.
//
// # Schedule formats
//
// The scheduler accepts multiple schedule syntaxes:
//
//   - Cron expressions: 5-field (min hour dom mon dow) or 6-field with
//     optional seconds. Example: "30 9 * * 1" or "0 */5 * * * *".
//   - Cron descriptors: "@hourly", "@daily", "@every 15m".
//   - Interval durations: Go duration strings like "15m" or "2h30m".
//   - Interval HH:MM: a compact duration format where "00:30" means every
//     30 minutes.
//
// To force interpretation, callers may prefix the string with "cron:",
// "interval:", or "every:".
//
// # Concurrency and overlap
//
// Jobs run on a worker pool. The default overlap policy skips a firing while
// the previous run of the same job is still executing, so every job is
// serialized with itself. A per-run timeout is applied to each attempt.
//
// # Lifecycle
//
// The Service can be started and stopped at runtime (e.g. via config hot
// reload). Registering jobs while stopped is supported: definitions are
// stored and applied on the next start.
package scheduler
