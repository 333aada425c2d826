// Package jobs implements the filesystem-backed job store.
//
// A job's state is inferred from which marker file exists in the programs
// directory: `_ID.json` (unprocessed), `~ID.json` (processing), `ID.json`
// (processed), or `!ID.json` (failed). Each marker holds the job's JSON
// description. Transitions are single renames, so at most one marker for an id
// exists at any time and other tools can read the state straight off disk.
//
// The package also owns the per-job artifact layout (video, split manifest,
// raw and aggregated results) so every component agrees on where files live.
package jobs
