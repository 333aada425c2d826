// Package config loads, normalizes, and validates faceomatic configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, loads a working-directory .env file, and honours the legacy
// environment variables such as ARCHIVE_USER_ID and MATROID_CLIENT_ID. The
// Config type centralizes every knob the daemon and CLI need so the job store,
// classifier client, and notifier all see the same sanitized values.
package config
