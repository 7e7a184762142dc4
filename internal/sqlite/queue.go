package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stayloop/availsync/internal/availsync"
)

const queueNamespace = "-sq"

func (r Repo) EnqueueItems(ctx context.Context, items []availsync.SyncQueueItem) error {
	if len(items) == 0 {
		return nil
	}

	const q = `
		INSERT INTO sync_queue_items (id, property_id, priority, status, started_at, completed_at, error_message, created_at)
		VALUES (:id, :property_id, :priority, :status, :started_at, :completed_at, :error_message, :created_at);`

	for _, item := range items {
		if item.ID == "" {
			item.ID = newID(queueNamespace)
		}
		if _, err := r.db.NamedExecContext(ctx, q, item); err != nil {
			// The partial unique index allows one live item per property.
			if isUniqueViolation(err) {
				return fmt.Errorf("property %s already has a live queue item: %w", item.PropertyID, availsync.ErrConflict)
			}
			return fmt.Errorf("error enqueueing item: %s", err)
		}
	}

	return nil
}

func (r Repo) UpdateQueueItem(ctx context.Context, id string, status availsync.QueueStatus, errMsg *string) error {
	now := time.Now().UTC()

	var (
		started   *time.Time
		completed *time.Time
	)
	switch status {
	case availsync.QueueProcessing:
		started = &now
	case availsync.QueueCompleted, availsync.QueueFailed, availsync.QueueCancelled:
		completed = &now
	}

	const q = `
		UPDATE sync_queue_items
		SET status = ?,
		    started_at = COALESCE(?, started_at),
		    completed_at = COALESCE(?, completed_at),
		    error_message = COALESCE(?, error_message)
		WHERE id = ?;`

	res, err := r.db.ExecContext(ctx, q, status, started, completed, errMsg, id)
	if err != nil {
		return fmt.Errorf("error updating queue item: %s", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return availsync.ErrNotFound
	}

	return nil
}

func (r Repo) LiveItemForProperty(ctx context.Context, propertyID string) (availsync.SyncQueueItem, error) {
	const q = `SELECT * FROM sync_queue_items WHERE property_id = ? AND status IN (?, ?) LIMIT 1;`

	var item availsync.SyncQueueItem
	err := r.db.GetContext(ctx, &item, q, propertyID, availsync.QueuePending, availsync.QueueProcessing)
	if errors.Is(err, sql.ErrNoRows) {
		return availsync.SyncQueueItem{}, availsync.ErrNotFound
	}
	if err != nil {
		return availsync.SyncQueueItem{}, fmt.Errorf("error fetching live queue item: %s", err)
	}

	return item, nil
}
