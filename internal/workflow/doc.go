// Package workflow runs the daemon's processing loop: worker slots claim
// ready jobs from the queue, drive them through the pipeline, and settle them
// as completed or failed. A maintenance loop reclaims stalled jobs, expires
// abandoned ones, and prunes settled history per the retention policy.
package workflow
