package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/stayloop/availsync/internal/availsync"
)

// upsertChunk keeps batched upserts under sqlite's bind variable ceiling.
const upsertChunk = 100

func (r Repo) UpsertRecords(ctx context.Context, records []availsync.AvailabilityRecord) error {
	if len(records) == 0 {
		return nil
	}

	for start := 0; start < len(records); start += upsertChunk {
		end := min(start+upsertChunk, len(records))

		b := sq.Insert("availability_records").
			Columns("property_id", "date", "is_available", "source", "provenance", "price", "min_stay", "max_stay", "last_updated")
		for _, rec := range records[start:end] {
			b = b.Values(rec.PropertyID, rec.Date, rec.IsAvailable, rec.Source, rec.Provenance, rec.Price, rec.MinStay, rec.MaxStay, rec.LastUpdated)
		}
		b = b.Suffix(`ON CONFLICT (property_id, date, source) DO UPDATE SET
			is_available = excluded.is_available,
			provenance = excluded.provenance,
			price = excluded.price,
			min_stay = excluded.min_stay,
			max_stay = excluded.max_stay,
			last_updated = excluded.last_updated`)

		query, args, err := b.ToSql()
		if err != nil {
			return fmt.Errorf("error constructing sql: %s", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("error upserting records: %s", err)
		}
	}

	return nil
}

func (r Repo) ReplaceUnified(ctx context.Context, propertyID string, records []availsync.AvailabilityRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const del = `DELETE FROM availability_records WHERE property_id = ? AND source = ?;`
	if _, err := tx.ExecContext(ctx, del, propertyID, availsync.SourceUnified); err != nil {
		return fmt.Errorf("error clearing unified records: %s", err)
	}

	const ins = `
		INSERT INTO availability_records (property_id, date, is_available, source, provenance, price, min_stay, max_stay, last_updated)
		VALUES (:property_id, :date, :is_available, :source, :provenance, :price, :min_stay, :max_stay, :last_updated);`
	for _, rec := range records {
		if _, err := tx.NamedExecContext(ctx, ins, rec); err != nil {
			return fmt.Errorf("error inserting unified record: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (r Repo) RecordsBySource(ctx context.Context, propertyID string, source availsync.Source) ([]availsync.AvailabilityRecord, error) {
	const q = `SELECT * FROM availability_records WHERE property_id = ? AND source = ? ORDER BY date;`

	var records []availsync.AvailabilityRecord
	if err := r.db.SelectContext(ctx, &records, q, propertyID, source); err != nil {
		return nil, fmt.Errorf("error selecting records: %s", err)
	}

	return records, nil
}
