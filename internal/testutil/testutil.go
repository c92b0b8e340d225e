package testutil

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"perspectives-watch/internal/chrono"
	"perspectives-watch/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "modernc.org/sqlite"
)

// SetupSQLStore opens a store over an in-memory sqlite database that is
// closed when the test ends.
func SetupSQLStore(t testing.TB, clock chrono.API) store.SQLStore {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	s, err := store.NewSQLStore(context.Background(), db, "classes", clock)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SetupRedis starts a throwaway redis container, the test is skipped if
// docker is not available or -short is set.
func SetupRedis(t *testing.T) *redis.Client {
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*2)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		err := container.Terminate(context.Background())
		if err != nil {
			t.Log("failed to terminate redis container", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })

	err = client.Ping(ctx).Err()
	if err != nil {
		t.Fatal(err)
	}
	return client
}

// Publication is a single call made to a RecordingSink.
type Publication struct {
	Destination string
	Message     string
}

// RecordingSink keeps every published notification in memory.
type RecordingSink struct {
	mutex        sync.Mutex
	publications []Publication
	Err          error
}

func (s *RecordingSink) Publish(_ context.Context, destination, message string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.publications = append(s.publications, Publication{Destination: destination, Message: message})
	return nil
}

func (s *RecordingSink) Publications() []Publication {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Publication(nil), s.publications...)
}

// StaticSource serves the same markup on every fetch.
type StaticSource struct {
	Markup []byte
	Err    error
	calls  int
}

func (s *StaticSource) Fetch(context.Context) ([]byte, error) {
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Markup, nil
}

func (s *StaticSource) Calls() int {
	return s.calls
}
