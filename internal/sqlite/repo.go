// Package sqlite implements the engine's persistence interfaces on top of
// sqlx and modernc's cgo-free sqlite driver.
package sqlite

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/stayloop/availsync/internal/availsync"
)

var (
	_ availsync.PropertyRepo = (*Repo)(nil)
	_ availsync.RecordRepo   = (*Repo)(nil)
	_ availsync.LogRepo      = (*Repo)(nil)
	_ availsync.QueueRepo    = (*Repo)(nil)
)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

func newID(namespace string) string {
	return fmt.Sprintf("%s%s", uuid.NewString(), namespace)
}

// 2067 is SQLITE_CONSTRAINT_UNIQUE.
func isUniqueViolation(err error) bool {
	sqliteErr := &sqlite.Error{}
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == 2067
}
