// Package ledger records every pipeline run in SQLite.
//
// Job state lives in the marker files owned by package jobs; the ledger is the
// history next to it: which attempt a run was, how far it got, how many
// segments it classified, and why it stopped. The runner consults it to
// enforce the optional download attempt ceiling and, at daemon start, to find
// runs that were cut short by a shutdown or crash.
//
// Schema changes bump schemaVersion; operators delete the database to adopt a
// new schema. Nothing in the ledger is needed to reconstruct job state.
package ledger
