package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"perspectives-watch/internal/chrono"
	"perspectives-watch/internal/schedule"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schemaTemplate = `CREATE TABLE IF NOT EXISTS "%[1]s" (
	session  TEXT NOT NULL,
	name     TEXT NOT NULL,
	city     TEXT NOT NULL,
	"start"  TEXT NOT NULL,
	"end"    TEXT NOT NULL,
	created  TEXT NOT NULL,
	modified TEXT NOT NULL,
	ttl      INTEGER NOT NULL,
	PRIMARY KEY (session, name)
)`

const indexTemplate = `CREATE INDEX IF NOT EXISTS "%[1]s_ttl" ON "%[1]s" (ttl)`

// SQLStore keeps records in a sqlite or libsql table.
type SQLStore struct {
	db    *sql.DB
	table string
	clock chrono.API
}

// OpenSQL opens a store over `driver` ("sqlite" or "libsql") and creates the
// table if it doesn't exist yet.
func OpenSQL(ctx context.Context, driver, dsn, table string, clock chrono.API) (SQLStore, error) {
	if driver != "sqlite" && driver != "libsql" {
		return SQLStore{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if dsn == "" {
		return SQLStore{}, fmt.Errorf("a dsn was not specified")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return SQLStore{}, err
	}
	if driver == "sqlite" {
		// see this stackoverflow post for information on why the following
		// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
		db.SetMaxOpenConns(1)
		_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return SQLStore{}, err
		}
	}

	s, err := NewSQLStore(ctx, db, table, clock)
	if err != nil {
		db.Close()
		return SQLStore{}, err
	}
	return s, nil
}

// NewSQLStore wraps an already open database.
func NewSQLStore(ctx context.Context, db *sql.DB, table string, clock chrono.API) (SQLStore, error) {
	err := validateTable(table)
	if err != nil {
		return SQLStore{}, err
	}
	if clock == nil {
		clock = chrono.StandardImpl{}
	}

	for _, stmt := range []string{schemaTemplate, indexTemplate} {
		_, err = db.ExecContext(ctx, fmt.Sprintf(stmt, table))
		if err != nil {
			return SQLStore{}, fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return SQLStore{db: db, table: table, clock: clock}, nil
}

func (s SQLStore) Names(ctx context.Context, session string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.Names")
	defer span.End()
	span.SetAttributes(attribute.String("session", session))

	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf(`SELECT name FROM "%s" WHERE session = ? AND ttl > ?`, s.table),
		session, s.clock.Now().Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query names")
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		err := rows.Scan(&name)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s SQLStore) BatchPut(ctx context.Context, records []schedule.PersistedClassRecord) ([]schedule.PersistedClassRecord, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.BatchPut")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	// an expired row that has not been swept yet counts as absent, so it is
	// replaced, a live row is never touched.
	query := fmt.Sprintf(
		`INSERT INTO "%[1]s" (session, name, city, "start", "end", created, modified, ttl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session, name) DO UPDATE SET
			city = excluded.city,
			"start" = excluded."start",
			"end" = excluded."end",
			created = excluded.created,
			modified = excluded.modified,
			ttl = excluded.ttl
		WHERE "%[1]s".ttl <= ?`,
		s.table,
	)
	now := s.clock.Now().Unix()

	var unprocessed []schedule.PersistedClassRecord
	for _, r := range records {
		_, err := s.db.ExecContext(
			ctx, query,
			r.Session, r.Name, r.City, r.Start, r.End, r.Created, r.Modified, r.Ttl,
			now,
		)
		if isTransient(err) {
			unprocessed = append(unprocessed, r)
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to insert record")
			return nil, fmt.Errorf("put %s/%s: %w", r.Session, r.Name, err)
		}
	}

	span.SetAttributes(attribute.Int("unprocessed", len(unprocessed)))
	return unprocessed, nil
}

func (s SQLStore) List(ctx context.Context, session string) ([]schedule.PersistedClassRecord, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.List")
	defer span.End()

	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf(
			`SELECT session, name, city, "start", "end", created, modified, ttl FROM "%s"
			WHERE (? = '' OR session = ?) AND ttl > ?
			ORDER BY session, name`,
			s.table,
		),
		session, session, s.clock.Now().Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list records")
		return nil, err
	}
	defer rows.Close()

	var records []schedule.PersistedClassRecord
	for rows.Next() {
		var r schedule.PersistedClassRecord
		err := rows.Scan(&r.Session, &r.Name, &r.City, &r.Start, &r.End, &r.Created, &r.Modified, &r.Ttl)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s SQLStore) Sweep(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "SQLStore.Sweep")
	defer span.End()

	res, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf(`DELETE FROM "%s" WHERE ttl <= ?`, s.table),
		s.clock.Now().Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to sweep")
		return 0, err
	}
	return res.RowsAffected()
}

func (s SQLStore) Close() error {
	return s.db.Close()
}

// isTransient reports whether err only means the database was busy, in which
// case the write can be attempted again.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	// libsql reports errors as text
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked")
}
