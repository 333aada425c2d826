// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and FailureState which
//     turns a stage failure into the job state the runner should persist
//     (retry, hold for an operator, or fail).
package services
