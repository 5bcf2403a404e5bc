package sink

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestNewPgx_Validation(t *testing.T) {
	if _, err := NewPgx(nil, ""); err == nil {
		t.Error("NewPgx(nil) should fail")
	}
}

func TestPgx_Postgres(t *testing.T) {
	dsn := os.Getenv("SYMPHONY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SYMPHONY_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := ConnectPgx(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("ConnectPgx() error = %v", err)
	}
	defer pool.Close()

	s, err := NewPgx(pool, "symphony_pgx_test")
	if err != nil {
		t.Fatalf("NewPgx() error = %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	t.Cleanup(func() { pool.Exec(context.Background(), "DROP TABLE symphony_pgx_test") })

	if err := s.Handle(ctx, sampleResult("pgx-job-1")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	rec, err := s.Lookup(ctx, "pgx-job-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if rec.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", rec.DurationMs)
	}
	if _, err := s.Lookup(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(missing) error = %v, want ErrNotFound", err)
	}
}

func TestConnectPgx_BadDSN(t *testing.T) {
	if _, err := ConnectPgx(context.Background(), "://not a dsn", 0); err == nil {
		t.Error("ConnectPgx() with a malformed DSN should fail")
	}
}
