package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"perspectives-watch/internal/chrono"
	"perspectives-watch/internal/schedule"
	"perspectives-watch/internal/telemetry"

	"github.com/stretchr/testify/require"
)

// fakeStore records every submission and leaves the first `failFirst`
// records of the first submission unprocessed.
type fakeStore struct {
	submissions [][]schedule.PersistedClassRecord
	failFirst   int
	err         error
}

func (f *fakeStore) BatchPut(_ context.Context, records []schedule.PersistedClassRecord) ([]schedule.PersistedClassRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	batch := append([]schedule.PersistedClassRecord(nil), records...)
	f.submissions = append(f.submissions, batch)
	if len(f.submissions) == 1 && f.failFirst > 0 {
		return batch[:f.failFirst], nil
	}
	return nil, nil
}

var fixedNow = time.Date(2024, time.September, 1, 12, 30, 45, 123456789, time.UTC)

func twoClassDelta() schedule.Delta {
	return schedule.Delta{
		Sessions: schedule.Sessions{
			"Fall 2024": {
				"A": {City: "Oakland", Start: "2024-09-01", End: "2024-12-01"},
				"B": {City: "Fresno", Start: "2024-09-15", End: "2024-12-20"},
			},
		},
		Count: 2,
	}
}

func TestSaveStampsRecords(t *testing.T) {
	store := &fakeStore{}
	writer := NewWriter(store, Options{Clock: chrono.Fixed(fixedNow)})

	err := writer.Save(context.Background(), twoClassDelta())
	require.NoError(t, err)

	require.Len(t, store.submissions, 1)
	records := store.submissions[0]
	require.Len(t, records, 2)

	truncated := fixedNow.Truncate(time.Second)
	for _, r := range records {
		require.Equal(t, "2024-09-01T12:30:45Z", r.Created)
		require.Equal(t, r.Created, r.Modified)
		require.Equal(t, truncated.Add(365*24*time.Hour).Unix(), r.Ttl)
		require.Equal(t, "Fall 2024", r.Session)
	}
	require.Equal(t, "A", records[0].Name)
	require.Equal(t, "Oakland", records[0].City)
	require.Equal(t, "B", records[1].Name)
}

func TestSaveResubmitsUnprocessed(t *testing.T) {
	store := &fakeStore{failFirst: 1}
	rec := &telemetry.Recorder{}
	writer := NewWriter(store, Options{Clock: chrono.Fixed(fixedNow), Telemetry: rec})

	err := writer.Save(context.Background(), twoClassDelta())
	require.NoError(t, err)

	require.Len(t, store.submissions, 2)
	require.Len(t, store.submissions[1], 1)
	require.Equal(t, store.submissions[0][0], store.submissions[1][0])

	counts := rec.Reports("count")
	require.Len(t, counts, 1)
	require.Equal(t, "persist.unprocessed", counts[0].Id)
}

func TestSaveSplitsBatches(t *testing.T) {
	delta := schedule.Delta{Sessions: schedule.Sessions{}}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		delta.Sessions.Put("S", name, schedule.ClassRecord{})
		delta.Count++
	}

	store := &fakeStore{}
	writer := NewWriter(store, Options{Clock: chrono.Fixed(fixedNow), MaxBatchSize: 2})
	require.NoError(t, writer.Save(context.Background(), delta))

	require.Len(t, store.submissions, 3)
	require.Len(t, store.submissions[0], 2)
	require.Len(t, store.submissions[1], 2)
	require.Len(t, store.submissions[2], 1)
}

func TestSaveHardError(t *testing.T) {
	boom := errors.New("boom")
	rec := &telemetry.Recorder{}
	writer := NewWriter(&fakeStore{err: boom}, Options{Telemetry: rec})

	err := writer.Save(context.Background(), twoClassDelta())
	require.ErrorIs(t, err, boom)
	require.Len(t, rec.Reports("broken"), 1)
}

type neverDoneStore struct{ calls int }

func (s *neverDoneStore) BatchPut(_ context.Context, records []schedule.PersistedClassRecord) ([]schedule.PersistedClassRecord, error) {
	s.calls++
	return records, nil
}

func TestSaveStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &neverDoneStore{}
	err := NewWriter(store, Options{}).Save(ctx, twoClassDelta())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, store.calls)
}

func TestSaveEmptyDelta(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, NewWriter(store, Options{}).Save(context.Background(), schedule.Delta{}))
	require.Empty(t, store.submissions)
}
