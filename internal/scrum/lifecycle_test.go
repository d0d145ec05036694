package scrum_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

func TestCreateSprint_Validation(t *testing.T) {
	f := newFixture(t)
	valid := scrum.SprintInput{
		ProjectID: f.projectID,
		Name:      "Sprint 1",
		StartDate: f.clock,
		EndDate:   f.clock.Add(24 * time.Hour),
	}

	tests := []struct {
		name   string
		mutate func(in *scrum.SprintInput)
		want   error
	}{
		{"empty name", func(in *scrum.SprintInput) { in.Name = "  " }, models.ErrInvalid},
		{"name too long", func(in *scrum.SprintInput) { in.Name = strings.Repeat("x", 101) }, models.ErrInvalid},
		{"missing dates", func(in *scrum.SprintInput) { in.StartDate = time.Time{} }, models.ErrInvalid},
		{"end before start", func(in *scrum.SprintInput) { in.EndDate = in.StartDate.Add(-time.Hour) }, models.ErrInvalid},
		{"unknown project", func(in *scrum.SprintInput) { in.ProjectID = 9999 }, models.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := f.mgr.CreateSprint(f.ctx, f.caps, in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	view, err := f.mgr.CreateSprint(f.ctx, f.caps, valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.State != models.SprintPlanned || view.Active || view.CompletedAt != nil {
		t.Fatalf("expected planned sprint, got %+v", view)
	}
	if view.Stories == nil {
		t.Fatal("expected empty story slice, got nil")
	}
}

func TestCreateSprint_WithStories(t *testing.T) {
	f := newFixture(t)
	a := f.story("a", 3, models.StatusBacklog)
	b := f.story("b", 5, models.StatusBacklog)

	view := f.sprint("S1", a.ID, b.ID)
	if view.Summary.TotalStories != 2 || view.Summary.TotalPoints != 8 {
		t.Fatalf("unexpected summary: %+v", view.Summary)
	}
	if !f.get(a.ID).InSprint(view.ID) {
		t.Fatal("expected story linked to new sprint")
	}
}

func TestCreateSprint_ConflictWhileActive(t *testing.T) {
	f := newFixture(t)
	s1 := f.sprint("S1")
	f.start(s1.ID)

	_, err := f.mgr.CreateSprint(f.ctx, f.caps, scrum.SprintInput{
		ProjectID: f.projectID,
		Name:      "S2",
		StartDate: f.clock,
		EndDate:   f.clock.Add(time.Hour),
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestStartSprint_PromotesOnlyBacklogStories(t *testing.T) {
	f := newFixture(t)
	backlog := f.story("backlog", 1, models.StatusBacklog)
	working := f.story("working", 2, models.StatusInProgress)
	s1 := f.sprint("S1", backlog.ID, working.ID)

	f.advance(time.Hour)
	view := f.start(s1.ID)

	if !view.Active || view.State != models.SprintActive {
		t.Fatalf("expected active sprint, got %+v", view.Sprint)
	}
	if !view.StartDate.Equal(f.clock) {
		t.Fatalf("expected start date %v, got %v", f.clock, view.StartDate)
	}
	if got := f.get(backlog.ID).Status; got != models.StatusTodo {
		t.Fatalf("expected TODO, got %s", got)
	}
	if got := f.get(working.ID).Status; got != models.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS untouched, got %s", got)
	}
}

func TestStartSprint_Conflicts(t *testing.T) {
	f := newFixture(t)
	s1 := f.sprint("S1")
	s2 := f.sprint("S2")
	f.start(s1.ID)

	if _, err := f.mgr.StartSprint(f.ctx, f.caps, s2.ID); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict starting second sprint, got %v", err)
	}
	if _, err := f.mgr.StartSprint(f.ctx, f.caps, s1.ID); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict restarting active sprint, got %v", err)
	}
	if _, err := f.mgr.CompleteSprint(f.ctx, f.caps, s1.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.mgr.StartSprint(f.ctx, f.caps, s1.ID); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict restarting completed sprint, got %v", err)
	}
	if _, err := f.mgr.StartSprint(f.ctx, f.caps, 9999); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	other, err := f.mgr.CreateProject(f.ctx, f.caps, "Gemini", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	f.start(f.sprintIn(other.ID, "G1").ID)
	f.start(s2.ID)
}

func TestStartSprint_Forbidden(t *testing.T) {
	f := newFixture(t)
	s1 := f.sprint("S1")

	_, err := f.mgr.StartSprint(f.ctx, scrum.ForRole(models.RoleDeveloper), s1.ID)
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	view, err := f.mgr.GetSprint(f.ctx, f.caps, s1.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Active {
		t.Fatal("denied start must not activate the sprint")
	}
}

func TestCompleteSprint_ReturnsUnfinishedStories(t *testing.T) {
	f := newFixture(t)
	done := f.story("done", 5, models.StatusBacklog)
	review := f.story("review", 3, models.StatusBacklog)
	todo := f.story("todo", 1, models.StatusBacklog)
	s1 := f.sprint("S1", done.ID, review.ID, todo.ID)
	f.start(s1.ID)

	if _, err := f.mgr.MoveStoryToColumn(f.ctx, f.caps, done.ID, models.StatusDone); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := f.mgr.MoveStoryToColumn(f.ctx, f.caps, review.ID, models.StatusInReview); err != nil {
		t.Fatalf("move: %v", err)
	}

	f.advance(48 * time.Hour)
	view, err := f.mgr.CompleteSprint(f.ctx, f.caps, s1.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if view.Active || view.CompletedAt == nil || !view.CompletedAt.Equal(f.clock) {
		t.Fatalf("expected completed sprint at %v, got %+v", f.clock, view.Sprint)
	}
	if view.State != models.SprintCompleted {
		t.Fatalf("expected COMPLETED, got %s", view.State)
	}
	if len(view.Stories) != 1 || view.Stories[0].ID != done.ID {
		t.Fatalf("expected only the DONE story to stay linked, got %+v", view.Stories)
	}
	for _, id := range []int64{review.ID, todo.ID} {
		s := f.get(id)
		if s.SprintID != nil || s.Status != models.StatusBacklog {
			t.Fatalf("story %d: expected unlinked BACKLOG, got sprint=%v status=%s", id, s.SprintID, s.Status)
		}
	}

	backlog, err := f.mgr.Backlog(f.ctx, f.caps, f.projectID)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if ids := storyIDs(backlog); !ids[review.ID] || !ids[todo.ID] || ids[done.ID] {
		t.Fatalf("unexpected backlog: %v", ids)
	}

	if _, err := f.mgr.CompleteSprint(f.ctx, f.caps, s1.ID); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict completing twice, got %v", err)
	}
	if _, err := f.mgr.ActiveSprint(f.ctx, f.caps, f.projectID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected no active sprint, got %v", err)
	}
}

func TestCompleteSprint_PlannedIsConflict(t *testing.T) {
	f := newFixture(t)
	s1 := f.sprint("S1")
	if _, err := f.mgr.CompleteSprint(f.ctx, f.caps, s1.ID); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAssignStories_ReplacesSet(t *testing.T) {
	f := newFixture(t)
	a := f.story("a", 1, models.StatusBacklog)
	b := f.story("b", 2, models.StatusBacklog)
	c := f.story("c", 3, models.StatusBacklog)
	s1 := f.sprint("S1")

	if _, err := f.mgr.AssignStories(f.ctx, f.caps, s1.ID, []int64{a.ID, b.ID}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	view, err := f.mgr.AssignStories(f.ctx, f.caps, s1.ID, []int64{c.ID, c.ID})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	ids := storyIDs(view.Stories)
	if len(ids) != 1 || !ids[c.ID] {
		t.Fatalf("expected only c linked, got %v", ids)
	}
	if f.get(a.ID).SprintID != nil || f.get(b.ID).SprintID != nil {
		t.Fatal("expected a and b unlinked after replace")
	}

	view, err = f.mgr.AddStories(f.ctx, f.caps, s1.ID, []int64{a.ID})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if ids := storyIDs(view.Stories); len(ids) != 2 || !ids[a.ID] || !ids[c.ID] {
		t.Fatalf("expected a and c linked, got %v", ids)
	}
}

func TestAssignStories_IsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	free := f.story("free", 1, models.StatusBacklog)
	taken := f.story("taken", 1, models.StatusBacklog)
	f.sprint("S1", taken.ID)
	s2 := f.sprint("S2")

	_, err := f.mgr.AssignStories(f.ctx, f.caps, s2.ID, []int64{free.ID, taken.ID})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.get(free.ID).SprintID != nil {
		t.Fatal("failed assignment must not link any story")
	}

	_, err = f.mgr.AssignStories(f.ctx, f.caps, s2.ID, []int64{free.ID, 9999})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.get(free.ID).SprintID != nil {
		t.Fatal("failed assignment must not link any story")
	}
}

func TestAssignStories_Conflicts(t *testing.T) {
	f := newFixture(t)
	other, err := f.mgr.CreateProject(f.ctx, f.caps, "Gemini", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	foreign := f.storyIn(other.ID, "foreign", 1, models.StatusBacklog)
	s1 := f.sprint("S1")

	if _, err := f.mgr.AssignStories(f.ctx, f.caps, s1.ID, []int64{foreign.ID}); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict for foreign story, got %v", err)
	}

	local := f.story("local", 1, models.StatusBacklog)
	f.start(s1.ID)
	if _, err := f.mgr.AssignStories(f.ctx, f.caps, s1.ID, []int64{local.ID}); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict on active sprint, got %v", err)
	}
	if _, err := f.mgr.RemoveStories(f.ctx, f.caps, s1.ID, []int64{local.ID}); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict removing from active sprint, got %v", err)
	}
	if _, err := f.mgr.AssignStories(f.ctx, f.caps, 9999, nil); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.mgr.AssignStories(f.ctx, scrum.ForRole(models.RoleDeveloper), s1.ID, nil); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRemoveStories_SkipsUnknownIDs(t *testing.T) {
	f := newFixture(t)
	a := f.story("a", 1, models.StatusTodo)
	b := f.story("b", 1, models.StatusBacklog)
	elsewhere := f.story("elsewhere", 1, models.StatusBacklog)
	s1 := f.sprint("S1", a.ID, b.ID)
	f.sprint("S2", elsewhere.ID)

	view, err := f.mgr.RemoveStories(f.ctx, f.caps, s1.ID, []int64{a.ID, 9999, elsewhere.ID})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ids := storyIDs(view.Stories); len(ids) != 1 || !ids[b.ID] {
		t.Fatalf("expected only b linked, got %v", ids)
	}
	removed := f.get(a.ID)
	if removed.SprintID != nil || removed.Status != models.StatusBacklog {
		t.Fatalf("expected a back in backlog, got %+v", removed)
	}
	if f.get(elsewhere.ID).SprintID == nil {
		t.Fatal("story of another sprint must stay linked")
	}
}

func TestUpdateSprint(t *testing.T) {
	f := newFixture(t)
	s1 := f.sprint("S1")
	goal := "ship login"

	view, err := f.mgr.UpdateSprint(f.ctx, f.caps, s1.ID, scrum.SprintInput{
		Name:      "Renamed",
		Goal:      &goal,
		StartDate: f.clock,
		EndDate:   f.clock.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.Name != "Renamed" || view.Goal == nil || *view.Goal != goal || view.ProjectID != f.projectID {
		t.Fatalf("unexpected sprint: %+v", view.Sprint)
	}

	f.start(s1.ID)
	if _, err := f.mgr.CompleteSprint(f.ctx, f.caps, s1.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = f.mgr.UpdateSprint(f.ctx, f.caps, s1.ID, scrum.SprintInput{Name: "x", StartDate: f.clock, EndDate: f.clock})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict updating completed sprint, got %v", err)
	}
}

func TestSprintQueries(t *testing.T) {
	f := newFixture(t)
	day := 24 * time.Hour

	mk := func(name string, offset time.Duration) models.SprintView {
		t.Helper()
		view, err := f.mgr.CreateSprint(f.ctx, f.caps, scrum.SprintInput{
			ProjectID: f.projectID,
			Name:      name,
			StartDate: f.clock.Add(offset),
			EndDate:   f.clock.Add(offset + 14*day),
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return view
	}
	past := mk("past", -30*day)
	current := mk("current", -1*day)
	later := mk("later", 30*day)
	sooner := mk("sooner", 10*day)

	f.start(past.ID)
	if _, err := f.mgr.CompleteSprint(f.ctx, f.caps, past.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	f.advance(time.Hour)
	f.start(current.ID)
	if _, err := f.mgr.CompleteSprint(f.ctx, f.caps, current.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	all, err := f.mgr.SprintsByProject(f.ctx, f.caps, f.projectID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 || all[0].ID != later.ID {
		t.Fatalf("expected 4 sprints newest first, got %d starting with %q", len(all), all[0].Name)
	}

	upcoming, err := f.mgr.UpcomingSprints(f.ctx, f.caps, f.projectID)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 2 || upcoming[0].ID != sooner.ID || upcoming[1].ID != later.ID {
		t.Fatalf("unexpected upcoming order: %+v", upcoming)
	}

	completed, err := f.mgr.CompletedSprints(f.ctx, f.caps, f.projectID)
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if len(completed) != 2 || completed[0].ID != current.ID || completed[1].ID != past.ID {
		t.Fatalf("expected most recently completed first, got %+v", completed)
	}

	if _, err := f.mgr.SprintsByProject(f.ctx, f.caps, 9999); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartSprint_ConcurrentCallsActivateOne(t *testing.T) {
	f := newFixture(t)
	var ids []int64
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		ids = append(ids, f.sprint(name).ID)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.mgr.StartSprint(f.ctx, f.caps, id)
			if err != nil && !errors.Is(err, models.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if started != 1 {
		t.Fatalf("expected exactly one sprint started, got %d", started)
	}
}
