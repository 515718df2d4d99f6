package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scribe/internal/config"
)

// timeLayout is RFC 3339 with a fixed nanosecond width. Timestamps are stored
// as strings and compared lexicographically in SQL, so the fractional part
// must not vary in length the way RFC3339Nano's trimmed zeros do.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Store manages job persistence backed by SQLite.
type Store struct {
	db          *sql.DB
	path        string
	maxAttempts int
	backoffBase time.Duration
}

// Open initializes or connects to the queue database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:          db,
		path:        dbPath,
		maxAttempts: cfg.Queue.MaxAttempts,
		backoffBase: time.Duration(cfg.Queue.BackoffBaseSeconds) * time.Second,
	}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MaxAttempts returns the configured retry ceiling applied to new jobs.
func (s *Store) MaxAttempts() int {
	return s.maxAttempts
}

// Submit enqueues a new job in the waiting state.
func (s *Store) Submit(ctx context.Context, payload Payload) (*Job, error) {
	payload.URL = strings.TrimSpace(payload.URL)
	if payload.URL == "" {
		return nil, errors.New("submit: url required")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	timestamp := formatTime(time.Now())

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (url, payload_json, status, progress, attempts, max_attempts, created_at)
         VALUES (?, ?, ?, 0, 0, ?, ?)`,
		payload.URL,
		string(payloadJSON),
		StatusWaiting,
		s.maxAttempts,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing job returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), ordered by creation time descending.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at DESC, id DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNextReady atomically claims the oldest dispatchable job: waiting, or
// delayed with an elapsed backoff. The claim flips the job to active and
// increments its attempt count in a single guarded update, so concurrent
// workers never double-claim.
func (s *Store) ClaimNextReady(ctx context.Context) (*Job, error) {
	now := time.Now().UTC()
	nowStr := formatTime(now)

	for {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM jobs
             WHERE status = ? OR (status = ? AND run_at IS NOT NULL AND run_at <= ?)
             ORDER BY created_at, id LIMIT 1`,
			StatusWaiting,
			StatusDelayed,
			nowStr,
		)
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select next job: %w", err)
		}

		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = attempts + 1, run_at = NULL,
                 started_at = COALESCE(started_at, ?), last_heartbeat = ?
             WHERE id = ? AND status IN (?, ?)`,
			StatusActive,
			nowStr,
			nowStr,
			id,
			StatusWaiting,
			StatusDelayed,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race to another worker; try the next candidate.
			continue
		}
		return s.GetByID(ctx, id)
	}
}

// SetProgress records handler progress for an active job. Progress is clamped
// to [0,100] and never decreases.
func (s *Store) SetProgress(ctx context.Context, id int64, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET progress = MAX(progress, ?) WHERE id = ?`,
		percent,
		id,
	)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ? WHERE id = ? AND status = ?`,
		now,
		id,
		StatusActive,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// Complete settles a job successfully with the handler result.
func (s *Store) Complete(ctx context.Context, id int64, result Result) (*Job, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	now := formatTime(time.Now())
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, progress = 100, result_json = ?, failure_reason = NULL,
             finished_at = ?, last_heartbeat = NULL, run_at = NULL
         WHERE id = ?`,
		StatusCompleted,
		string(resultJSON),
		now,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Fail records a handler failure. Terminal failures (or exhausted retry
// budgets) settle the job as failed; anything else is rescheduled as delayed
// with exponential backoff doubling per attempt.
func (s *Store) Fail(ctx context.Context, id int64, reason string, final bool) (*Job, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("fail job %d: %w", id, sql.ErrNoRows)
	}

	now := time.Now().UTC()
	nowStr := formatTime(now)

	if final || job.Attempts >= job.MaxAttempts {
		var resultJSON any
		if final {
			encoded, merr := json.Marshal(Result{URL: job.Payload.URL, Final: true, Reason: reason})
			if merr != nil {
				return nil, fmt.Errorf("marshal terminal result: %w", merr)
			}
			resultJSON = string(encoded)
		}
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, failure_reason = ?, result_json = COALESCE(?, result_json),
                 finished_at = ?, last_heartbeat = NULL, run_at = NULL
             WHERE id = ?`,
			StatusFailed,
			reason,
			resultJSON,
			nowStr,
			id,
		)
		if err != nil {
			return nil, fmt.Errorf("fail job: %w", err)
		}
		return s.GetByID(ctx, id)
	}

	runAt := formatTime(now.Add(s.backoffDelay(job.Attempts)))
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, failure_reason = ?, run_at = ?, last_heartbeat = NULL
         WHERE id = ?`,
		StatusDelayed,
		reason,
		runAt,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("reschedule job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// backoffDelay computes the delay before the next attempt: base * 2^(attempt-1).
func (s *Store) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := s.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

const jobColumns = "id, url, payload_json, status, progress, attempts, max_attempts, run_at, result_json, failure_reason, created_at, started_at, finished_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            int64
		url           string
		payloadJSON   string
		statusStr     string
		progress      int
		attempts      int
		maxAttempts   int
		runAtRaw      sql.NullString
		resultJSON    sql.NullString
		failureReason sql.NullString
		createdRaw    sql.NullString
		startedRaw    sql.NullString
		finishedRaw   sql.NullString
		heartbeatRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&url,
		&payloadJSON,
		&statusStr,
		&progress,
		&attempts,
		&maxAttempts,
		&runAtRaw,
		&resultJSON,
		&failureReason,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:            id,
		Status:        Status(statusStr),
		Progress:      progress,
		Attempts:      attempts,
		MaxAttempts:   maxAttempts,
		FailureReason: failureReason.String,
	}
	if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
		return nil, fmt.Errorf("decode payload for job %d: %w", id, err)
	}
	if job.Payload.URL == "" {
		job.Payload.URL = url
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result Result
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode result for job %d: %w", id, err)
		}
		job.Result = &result
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	job.RunAt = parseOptionalTime(runAtRaw)
	job.StartedAt = parseOptionalTime(startedRaw)
	job.FinishedAt = parseOptionalTime(finishedRaw)
	job.LastHeartbeat = parseOptionalTime(heartbeatRaw)
	return job, nil
}

func parseOptionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
