// Package queue implements the durable transcription job queue backed by
// SQLite.
//
// Jobs move through waiting -> active -> completed/failed, with delayed used
// for backoff between retry attempts. The store survives restarts; stale
// active jobs are reclaimed via heartbeats and settled jobs are pruned by an
// age and count bound.
package queue
