package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stayloop/availsync/internal/availsync"
)

const logNamespace = "-log"

func (r Repo) InsertLog(ctx context.Context, log availsync.SyncAttemptLog) (availsync.SyncAttemptLog, error) {
	const q = `
		INSERT INTO sync_attempt_logs (id, property_id, source_kind, attempt_number, status, message, started_at, completed_at)
		VALUES (:id, :property_id, :source_kind, :attempt_number, :status, :message, :started_at, :completed_at);`

	log.ID = newID(logNamespace)
	if log.Status == "" {
		log.Status = availsync.StatusPending
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, q, log); err != nil {
		return availsync.SyncAttemptLog{}, fmt.Errorf("error inserting attempt log: %s", err)
	}

	return log, nil
}

func (r Repo) MarkStarted(ctx context.Context, id string) error {
	const q = `UPDATE sync_attempt_logs SET status = ? WHERE id = ? AND status = ?;`

	res, err := r.db.ExecContext(ctx, q, availsync.StatusStarted, id, availsync.StatusPending)
	if err != nil {
		return fmt.Errorf("error marking attempt log started: %s", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attempt log %s is not pending: %w", id, availsync.ErrConflict)
	}

	return nil
}

// FinishLog applies the single allowed terminal transition. A second call
// for the same log is a conflict, not an overwrite.
func (r Repo) FinishLog(ctx context.Context, id string, status availsync.SyncStatus, attempts int, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	const q = `
		UPDATE sync_attempt_logs
		SET status = ?, attempt_number = ?, message = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?);`

	res, err := r.db.ExecContext(ctx, q, status, attempts, message, time.Now().UTC(), id, availsync.StatusPending, availsync.StatusStarted)
	if err != nil {
		return fmt.Errorf("error finishing attempt log: %s", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attempt log %s already terminal: %w", id, availsync.ErrConflict)
	}

	return nil
}

func (r Repo) Log(ctx context.Context, id string) (availsync.SyncAttemptLog, error) {
	const q = `SELECT * FROM sync_attempt_logs WHERE id = ?;`

	var log availsync.SyncAttemptLog
	err := r.db.GetContext(ctx, &log, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return availsync.SyncAttemptLog{}, availsync.ErrNotFound
	}
	if err != nil {
		return availsync.SyncAttemptLog{}, fmt.Errorf("error fetching attempt log: %s", err)
	}

	return log, nil
}

func (r Repo) LogStats(ctx context.Context, since time.Time) (availsync.LogStats, error) {
	const q = `
		SELECT status, source_kind, COUNT(*) AS n
		FROM sync_attempt_logs
		WHERE started_at >= ?
		GROUP BY status, source_kind;`

	rows, err := r.db.QueryxContext(ctx, q, since)
	if err != nil {
		return availsync.LogStats{}, fmt.Errorf("error querying log stats: %s", err)
	}
	defer rows.Close()

	stats := availsync.LogStats{
		ByStatus:    map[string]int{},
		BySource:    map[string]int{},
		WindowStart: since,
	}
	for rows.Next() {
		var (
			status, source string
			n              int
		)
		if err := rows.Scan(&status, &source, &n); err != nil {
			return availsync.LogStats{}, fmt.Errorf("error scanning log stats: %s", err)
		}
		stats.Total += n
		stats.ByStatus[status] += n
		stats.BySource[source] += n
	}
	if err := rows.Err(); err != nil {
		return availsync.LogStats{}, fmt.Errorf("error iterating log stats: %s", err)
	}

	return stats, nil
}
