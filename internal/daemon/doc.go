// Package daemon coordinates the long-running faceomatic process.
//
// It wires configuration, the job store, the run ledger, the workflow manager,
// and the discovery registrar into a single lifecycle with flock-based locking
// to prevent two daemons from sharing one data directory. Discovery and
// dispatch fire on independent cron schedules, and a small unauthenticated
// HTTP API exposes status, job and run listings, and manual triggers.
//
// Keep orchestration logic here: individual pipeline steps live in their
// stage packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
