package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/rtctl/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	e := history.Event{
		Type:       history.EventShutdown,
		OccurredAt: time.Now().UTC(),
		App:        "shop",
		Pid:        777,
		State:      "kill",
		Detail:     "stopped",
	}
	if err := sink.Send(ctx, e); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}

	var app, state string
	var pid int
	err = sink.db.QueryRowContext(ctx,
		"SELECT app, pid, state FROM "+history.DefaultTable+" WHERE event = $1", "shutdown").Scan(&app, &pid, &state)
	if err != nil {
		t.Fatalf("Failed to query event: %v", err)
	}
	if app != "shop" || pid != 777 || state != "kill" {
		t.Fatalf("unexpected row: %s %d %s", app, pid, state)
	}

	// re-opening keeps the existing table
	again, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to reopen sink: %v", err)
	}
	_ = again.Close()
}

func TestPostgresSinkEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
