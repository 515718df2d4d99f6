package queue

import (
	"context"
	"fmt"
	"time"
)

// ReclaimStale returns active jobs with expired heartbeats to the waiting
// bucket so a restarted worker can pick them up. The reclaimed attempt is not
// refunded; a crashed attempt still counts against the retry budget.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, last_heartbeat = NULL
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusWaiting,
		StatusActive,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// SweepExpired fails unsettled jobs older than the retention age bound. This
// recovers queue slots orphaned by workers that died without a heartbeat ever
// being written.
func (s *Store) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, failure_reason = 'expired before completion',
             finished_at = ?, last_heartbeat = NULL, run_at = NULL
         WHERE status IN (?, ?, ?) AND created_at < ?`,
		StatusFailed,
		now,
		StatusWaiting,
		StatusDelayed,
		StatusActive,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes settled jobs older than age, and beyond that trims each
// settled bucket to at most keep entries, newest first.
func (s *Store) Prune(ctx context.Context, age time.Duration, keep int) (int64, error) {
	cutoff := formatTime(time.Now().Add(-age))
	var total int64

	for _, status := range settledStatuses {
		res, err := s.db.ExecContext(
			ctx,
			`DELETE FROM jobs WHERE status = ? AND finished_at IS NOT NULL AND finished_at < ?`,
			status,
			cutoff,
		)
		if err != nil {
			return total, fmt.Errorf("prune %s by age: %w", status, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}

		if keep <= 0 {
			continue
		}
		res, err = s.db.ExecContext(
			ctx,
			`DELETE FROM jobs
             WHERE status = ? AND id NOT IN (
                 SELECT id FROM jobs WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?
             )`,
			status,
			status,
			keep,
		)
		if err != nil {
			return total, fmt.Errorf("prune %s by count: %w", status, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusWaiting:
			health.Waiting += count
		case StatusActive:
			health.Active += count
		case StatusDelayed:
			health.Delayed += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}
