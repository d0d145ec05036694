package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
	"sprintboard/internal/storage/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "sprintboard.db"), nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) scrum.Store {
		return newTestStore(t)
	})
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	first, err := Open(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	projectID, _ := storetest.Seed(t, first, "kept")
	if err := first.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	err = second.InTx(context.Background(), func(tx scrum.Tx) error {
		_, err := tx.GetProject(context.Background(), projectID)
		return err
	})
	if err != nil {
		t.Fatalf("expected project to survive reopen: %v", err)
	}
}

func TestActiveIndexRejectsDirectInsert(t *testing.T) {
	store := newTestStore(t)
	projectID, _ := storetest.Seed(t, store, "index")
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.db.Exec(`INSERT INTO sprints(project_id, name, start_date, end_date, active) VALUES(?, 'a', ?, ?, 1)`, projectID, now, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = store.db.Exec(`INSERT INTO sprints(project_id, name, start_date, end_date, active) VALUES(?, 'b', ?, ?, 1)`, projectID, now, now)
	if !errors.Is(mapConstraint(err), models.ErrConflict) {
		t.Fatalf("expected unique violation mapped to conflict, got %v", err)
	}
}

func TestConcurrentStartOnlyOneWins(t *testing.T) {
	store := newTestStore(t)
	projectID, _ := storetest.Seed(t, store, "race")
	mgr := scrum.NewManager(store, nil)
	caps := scrum.SystemCapabilities()
	ctx := context.Background()

	start := time.Now().UTC()
	var ids []int64
	for _, name := range []string{"one", "two", "three", "four"} {
		view, err := mgr.CreateSprint(ctx, caps, scrum.SprintInput{
			ProjectID: projectID,
			Name:      name,
			StartDate: start,
			EndDate:   start.Add(14 * 24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("create sprint: %v", err)
		}
		ids = append(ids, view.ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		started   int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := mgr.StartSprint(ctx, caps, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, models.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if started != 1 || conflicts != len(ids)-1 {
		t.Fatalf("expected 1 start and %d conflicts, got %d and %d", len(ids)-1, started, conflicts)
	}
}
