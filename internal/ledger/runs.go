package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runColumns = "id, job_id, attempt, request_id, status, stage, segments, segments_done, bytes_downloaded, message, error_message, started_at, updated_at, finished_at"

// BeginRun records the start of a new attempt for jobID. The attempt number is
// one more than the number of earlier runs for the job.
func (s *Store) BeginRun(ctx context.Context, jobID, requestID string) (*Run, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("job id is required")
	}
	now := formatTime(time.Now())
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO pipeline_runs (job_id, attempt, request_id, status, started_at, updated_at)
             VALUES (?, (SELECT COUNT(1) + 1 FROM pipeline_runs WHERE job_id = ?), ?, ?, ?, ?)`,
			jobID, jobID, nullableString(requestID), StatusRunning, now, now,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return s.Get(ctx, id)
}

// UpdateProgress applies a progress update to a running run.
func (s *Store) UpdateProgress(ctx context.Context, id int64, p Progress) error {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}
	if p.Stage != "" {
		sets = append(sets, "stage = ?")
		args = append(args, p.Stage)
	}
	if p.Segments > 0 {
		sets = append(sets, "segments = ?")
		args = append(args, p.Segments)
	}
	if p.SegmentsDone > 0 {
		sets = append(sets, "segments_done = ?")
		args = append(args, p.SegmentsDone)
	}
	if p.BytesDownloaded > 0 {
		sets = append(sets, "bytes_downloaded = ?")
		args = append(args, p.BytesDownloaded)
	}
	if p.Message != "" {
		sets = append(sets, "message = ?")
		args = append(args, p.Message)
	}
	args = append(args, id, StatusRunning)
	query := `UPDATE pipeline_runs SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ?`
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// Finish closes a run with a terminal status. cause may be nil.
func (s *Store) Finish(ctx context.Context, id int64, status Status, cause error) error {
	if !status.Terminal() {
		return fmt.Errorf("finish run: %q is not a terminal status", status)
	}
	var message any
	if cause != nil {
		message = cause.Error()
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE pipeline_runs SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND status = ?`,
		status, message, now, now, id, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %d: no running run with that id", id)
	}
	return nil
}

// Get fetches a run by id; it returns nil when the run does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestForJob returns the most recent run for jobID, or nil.
func (s *Store) LatestForJob(ctx context.Context, jobID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE job_id = ? ORDER BY id DESC LIMIT 1`, jobID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query := `SELECT ` + runColumns + ` FROM pipeline_runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountRuns counts runs for jobID whose status is one of statuses.
func (s *Store) CountRuns(ctx context.Context, jobID string, statuses ...Status) (int, error) {
	query := `SELECT COUNT(1) FROM pipeline_runs WHERE job_id = ?`
	args := []any{jobID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

// RecoverInterrupted marks every run still recorded as running as interrupted
// and returns them together with runs waiting on a delayed retry. Both kinds
// belong to jobs whose markers may still say Processing after a restart.
func (s *Store) RecoverInterrupted(ctx context.Context) ([]*Run, error) {
	pending, err := s.List(ctx, Filter{Statuses: []Status{StatusRunning, StatusRetryPending}})
	if err != nil {
		return nil, err
	}
	// Only the newest run per job matters.
	seen := make(map[string]struct{}, len(pending))
	var out []*Run
	for _, run := range pending {
		if _, dup := seen[run.JobID]; dup {
			continue
		}
		seen[run.JobID] = struct{}{}
		latest, err := s.LatestForJob(ctx, run.JobID)
		if err != nil {
			return nil, err
		}
		if latest == nil || latest.ID != run.ID {
			continue
		}
		out = append(out, run)
	}

	now := formatTime(time.Now())
	if _, err := s.execWithRetry(ctx,
		`UPDATE pipeline_runs SET status = ?, message = 'interrupted by shutdown', updated_at = ?, finished_at = ?
         WHERE status = ?`,
		StatusInterrupted, now, now, StatusRunning,
	); err != nil {
		return nil, fmt.Errorf("mark interrupted runs: %w", err)
	}
	for _, run := range out {
		if run.Status == StatusRunning {
			run.Status = StatusInterrupted
		}
	}
	return out, nil
}

// Stats returns counts per status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int, len(allStatuses))}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM pipeline_runs GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.ByStatus[Status(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	_ = rows.Close()

	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(started_at) FROM pipeline_runs`).Scan(&last); err != nil {
		return stats, fmt.Errorf("last run: %w", err)
	}
	if last.Valid {
		if t, err := parseTimeString(last.String); err == nil {
			stats.LastRun = &t
		}
	}
	return stats, nil
}

// CheckHealth runs an integrity check and reports the schema version.
func (s *Store) CheckHealth(ctx context.Context) Health {
	health := Health{Path: s.path}
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health
	}
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Integrity = result == "ok"
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM pipeline_runs").Scan(&health.Runs); err != nil {
		health.Error = err.Error()
	}
	return health
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		requestID   sql.NullString
		status      string
		stage       sql.NullString
		message     sql.NullString
		errorMsg    sql.NullString
		startedRaw  string
		updatedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.JobID,
		&run.Attempt,
		&requestID,
		&status,
		&stage,
		&run.Segments,
		&run.SegmentsDone,
		&run.BytesDownloaded,
		&message,
		&errorMsg,
		&startedRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.RequestID = requestID.String
	run.Status = Status(status)
	run.Stage = stage.String
	run.Message = message.String
	run.ErrorMessage = errorMsg.String
	if t, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = t
	}
	if finishedRaw.Valid {
		if t, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}
