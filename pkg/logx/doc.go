// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so components can hold a Logger value that stays live across
// runtime config changes: the Service owns the root zerolog.Logger behind an
// atomic.Value, and Apply() swaps sinks/levels without re-wiring callers.
//
// Sinks: pretty console output and an optional append-only log file.
package logx
