// Package logging assembles the structured slog loggers used across faceomatic.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context-aware helpers that tag every line with the job id, pipeline stage,
// and correlation id carried on a context. Components obtain a tagged child
// logger through NewComponentLogger; tests use NewNop.
package logging
