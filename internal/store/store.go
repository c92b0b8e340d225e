package store

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"perspectives-watch/internal/schedule"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("perspectives/store")

// Store is the record of every class that has already been notified about.
// Records are keyed by (session, name) and are invisible once their ttl passes.
type Store interface {
	// Names returns the names of every unexpired class stored under session.
	Names(ctx context.Context, session string) ([]string, error)
	// BatchPut writes records that are not stored yet, existing records are
	// left untouched. Records that could not be applied for transient reasons
	// are returned as unprocessed, err is reserved for failures that make the
	// whole batch untrustworthy.
	BatchPut(ctx context.Context, records []schedule.PersistedClassRecord) (unprocessed []schedule.PersistedClassRecord, err error)
	// List returns the full unexpired records under session, or under every
	// session if session is empty, ordered by session then name.
	List(ctx context.Context, session string) ([]schedule.PersistedClassRecord, error)
	// Sweep deletes expired records and returns how many were removed.
	Sweep(ctx context.Context) (int64, error)
	Close() error
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

func validateTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// ReadOnly answers queries from the wrapped store but drops every write, it
// backs dry runs so that nothing they see is marked as already notified.
type ReadOnly struct {
	Store
}

func (r ReadOnly) BatchPut(ctx context.Context, records []schedule.PersistedClassRecord) ([]schedule.PersistedClassRecord, error) {
	slog.InfoContext(ctx, "dry run, records not written", "records", len(records))
	return nil, nil
}
