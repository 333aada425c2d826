// Package notifications renders job reports and posts them to the webhook
// registry.
//
// The registry is a newline-separated file of webhook URLs shared with the
// CLI, which appends to it under a file lock. Publishing is best effort: every
// URL is posted concurrently, failures are logged at warn, and nothing is
// retried or returned to the pipeline.
package notifications
