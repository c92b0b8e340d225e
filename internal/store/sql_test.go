package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"perspectives-watch/internal/chrono"
	"perspectives-watch/internal/schedule"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// mutableClock lets a test move time forward.
type mutableClock struct{ now time.Time }

func (c *mutableClock) Now() time.Time { return c.now }

func setupSQLStore(t *testing.T, clock chrono.API) SQLStore {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	s, err := NewSQLStore(context.Background(), db, "classes", clock)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var created = time.Date(2024, time.September, 1, 12, 0, 0, 0, time.UTC)

func record(session, name, city string, now time.Time) schedule.PersistedClassRecord {
	return schedule.Stamp(session, name, schedule.ClassRecord{City: city, Start: "s", End: "e"}, now)
}

func TestSQLStorePutAndQuery(t *testing.T) {
	clock := &mutableClock{now: created}
	s := setupSQLStore(t, clock)
	ctx := context.Background()

	names, err := s.Names(ctx, "Fall 2024")
	require.NoError(t, err)
	require.Empty(t, names)

	unprocessed, err := s.BatchPut(ctx, []schedule.PersistedClassRecord{
		record("Fall 2024", "A", "Oakland", created),
		record("Fall 2024", "B", "Fresno", created),
		record("Spring 2025", "A", "San Jose", created),
	})
	require.NoError(t, err)
	require.Empty(t, unprocessed)

	names, err = s.Names(ctx, "Fall 2024")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"A", "B"}, names)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "Fall 2024", all[0].Session)
	require.Equal(t, "A", all[0].Name)
	require.Equal(t, "Spring 2025", all[2].Session)

	spring, err := s.List(ctx, "Spring 2025")
	require.NoError(t, err)
	require.Len(t, spring, 1)
	require.Equal(t, record("Spring 2025", "A", "San Jose", created), spring[0])
}

func TestSQLStoreWriteOnce(t *testing.T) {
	clock := &mutableClock{now: created}
	s := setupSQLStore(t, clock)
	ctx := context.Background()

	first := record("S", "N", "Oakland", created)
	_, err := s.BatchPut(ctx, []schedule.PersistedClassRecord{first})
	require.NoError(t, err)

	later := created.Add(48 * time.Hour)
	clock.now = later
	_, err = s.BatchPut(ctx, []schedule.PersistedClassRecord{record("S", "N", "Berkeley", later)})
	require.NoError(t, err)

	records, err := s.List(ctx, "S")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, first, records[0])
}

func TestSQLStoreExpiry(t *testing.T) {
	clock := &mutableClock{now: created}
	s := setupSQLStore(t, clock)
	ctx := context.Background()

	_, err := s.BatchPut(ctx, []schedule.PersistedClassRecord{record("S", "N", "Oakland", created)})
	require.NoError(t, err)

	clock.now = created.Add(schedule.RecordLifetime)
	names, err := s.Names(ctx, "S")
	require.NoError(t, err)
	require.Empty(t, names)

	// an expired row is replaced by a new put even before it is swept
	replacement := record("S", "N", "Berkeley", clock.now)
	_, err = s.BatchPut(ctx, []schedule.PersistedClassRecord{replacement})
	require.NoError(t, err)
	records, err := s.List(ctx, "S")
	require.NoError(t, err)
	require.Equal(t, []schedule.PersistedClassRecord{replacement}, records)

	clock.now = clock.now.Add(schedule.RecordLifetime)
	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestSQLStoreRejectsBadTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, err = NewSQLStore(context.Background(), db, `classes"; DROP TABLE x; --`, nil)
	require.ErrorContains(t, err, "invalid table name")
}

func TestOpenSQLFile(t *testing.T) {
	path := t.TempDir() + "/classes.db"
	s, err := OpenSQL(context.Background(), "sqlite", path, "classes", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = OpenSQL(context.Background(), "postgres", path, "classes", nil)
	require.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	require.False(t, isTransient(nil))
	require.True(t, isTransient(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, isTransient(errors.New("constraint failed: NOT NULL constraint failed")))
}

func TestReadOnlyDropsWrites(t *testing.T) {
	s := setupSQLStore(t, chrono.Fixed(created))
	ctx := context.Background()

	_, err := s.BatchPut(ctx, []schedule.PersistedClassRecord{record("Fall 2024", "A", "Oakland", created)})
	require.NoError(t, err)

	readOnly := ReadOnly{Store: s}
	unprocessed, err := readOnly.BatchPut(ctx, []schedule.PersistedClassRecord{record("Fall 2024", "B", "Fresno", created)})
	require.NoError(t, err)
	require.Empty(t, unprocessed)

	names, err := readOnly.Names(ctx, "Fall 2024")
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, names)
}
