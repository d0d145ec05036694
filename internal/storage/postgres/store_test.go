package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
	"sprintboard/internal/storage/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	ctx := context.Background()
	st, err := Open(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := st.Pool.Exec(ctx, `TRUNCATE stories, sprints, users, projects RESTART IDENTITY CASCADE`); err != nil {
		_ = st.Close()
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) scrum.Store {
		return openTestStore(t)
	})
}

func TestMigrateTwice(t *testing.T) {
	st := openTestStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestOpen_requiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Open(context.Background(), "", nil); err == nil {
		t.Fatal("expected error without DSN")
	}
}

func TestMapErrorPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("plain")
	if got := mapError(plain); got != plain {
		t.Fatalf("expected plain error back, got %v", got)
	}
	if errors.Is(mapError(plain), models.ErrConflict) {
		t.Fatal("plain error must not map to conflict")
	}
}
