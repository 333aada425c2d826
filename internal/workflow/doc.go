// Package workflow drives Unprocessed jobs through the pipeline stages.
//
// Dispatch walks the job store's Unprocessed markers and starts one run per
// job, bounded by max_parallel_jobs; jobs beyond the bound wait for the next
// tick. A run claims its job with MarkProcessing, records itself in the run
// ledger, and feeds a stage.Run through download, split, classify, and report
// in order. On success the job becomes Processed and its video artifacts are
// deleted.
//
// Failures are routed by services.FailureState: transient failures revert the
// job to Unprocessed after download_retry_delay, external tool failures stall
// it in Processing for an operator reset, and everything else marks it
// Failed. Runs cut short by shutdown are reverted immediately, and runs left
// behind by a crash are recovered at the next start.
package workflow
