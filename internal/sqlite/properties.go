package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stayloop/availsync/internal/availsync"
)

const propertyNamespace = "-prop"

func (r Repo) Property(ctx context.Context, id string) (availsync.Property, error) {
	const q = `SELECT * FROM properties WHERE id = ?;`

	var prop availsync.Property
	err := r.db.GetContext(ctx, &prop, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return availsync.Property{}, availsync.ErrNotFound
	}
	if err != nil {
		return availsync.Property{}, fmt.Errorf("error fetching property: %s", err)
	}

	return prop, nil
}

func (r Repo) PropertyByExternalID(ctx context.Context, externalID string) (availsync.Property, error) {
	const q = `SELECT * FROM properties WHERE external_id = ?;`

	var prop availsync.Property
	err := r.db.GetContext(ctx, &prop, q, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return availsync.Property{}, availsync.ErrNotFound
	}
	if err != nil {
		return availsync.Property{}, fmt.Errorf("error fetching property by external id: %s", err)
	}

	return prop, nil
}

func (r Repo) AllProperties(ctx context.Context) ([]availsync.Property, error) {
	const q = `SELECT * FROM properties ORDER BY id;`

	var props []availsync.Property
	if err := r.db.SelectContext(ctx, &props, q); err != nil {
		return nil, fmt.Errorf("error selecting all properties: %s", err)
	}

	return props, nil
}

func (r Repo) PropertiesNeedingSync(ctx context.Context, cutoff time.Time) ([]availsync.Property, error) {
	const q = `SELECT * FROM properties WHERE last_synced IS NULL OR last_synced < ? ORDER BY last_synced IS NOT NULL, last_synced;`

	var props []availsync.Property
	if err := r.db.SelectContext(ctx, &props, q, cutoff); err != nil {
		return nil, fmt.Errorf("error selecting properties needing sync: %s", err)
	}

	return props, nil
}

func (r Repo) StampSynced(ctx context.Context, id string, at time.Time, sources []availsync.Source) error {
	const q = `UPDATE properties SET last_synced = ?, last_sync_sources = ? WHERE id = ?;`

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s))
	}

	res, err := r.db.ExecContext(ctx, q, at, strings.Join(names, ","), id)
	if err != nil {
		return fmt.Errorf("error stamping property synced: %s", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return availsync.ErrNotFound
	}

	return nil
}

// InsertProperty exists for seeding and tests; property rows are otherwise
// owned by the listing store.
func (r Repo) InsertProperty(ctx context.Context, prop availsync.Property) (availsync.Property, error) {
	const q = `
		INSERT INTO properties (id, external_id, platform, vendor_page_url, feed_url, last_synced, last_sync_sources)
		VALUES (:id, :external_id, :platform, :vendor_page_url, :feed_url, :last_synced, :last_sync_sources);`

	if prop.ID == "" {
		prop.ID = newID(propertyNamespace)
	}
	if _, err := r.db.NamedExecContext(ctx, q, prop); err != nil {
		if isUniqueViolation(err) {
			return availsync.Property{}, fmt.Errorf("property already exists: %w", availsync.ErrConflict)
		}
		return availsync.Property{}, fmt.Errorf("error inserting property: %s", err)
	}

	return r.Property(ctx, prop.ID)
}
