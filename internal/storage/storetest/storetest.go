// Package storetest holds the behaviour every scrum.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

// Factory opens an empty store for one test.
type Factory func(t *testing.T) scrum.Store

// Run exercises the store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ProjectCRUD", func(t *testing.T) { testProjectCRUD(t, newStore(t)) })
	t.Run("UserUniqueUsername", func(t *testing.T) { testUserUnique(t, newStore(t)) })
	t.Run("SingleActiveSprint", func(t *testing.T) { testSingleActiveSprint(t, newStore(t)) })
	t.Run("SprintOrderAndFields", func(t *testing.T) { testSprintOrder(t, newStore(t)) })
	t.Run("StoryFilters", func(t *testing.T) { testStoryFilters(t, newStore(t)) })
	t.Run("StoryRoundTrip", func(t *testing.T) { testStoryRoundTrip(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ProjectCascade", func(t *testing.T) { testProjectCascade(t, newStore(t)) })
}

var base = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func inTx(t *testing.T, s scrum.Store, fn func(tx scrum.Tx) error) {
	t.Helper()
	if err := s.InTx(context.Background(), fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Seed creates a project and a reporter and returns their ids.
func Seed(t *testing.T, s scrum.Store, name string) (projectID, userID int64) {
	t.Helper()
	ctx := context.Background()
	inTx(t, s, func(tx scrum.Tx) error {
		p, err := tx.CreateProject(ctx, models.Project{Name: name})
		if err != nil {
			return err
		}
		u, err := tx.CreateUser(ctx, models.User{Username: name + "-reporter", Role: models.RoleAdmin})
		if err != nil {
			return err
		}
		projectID, userID = p.ID, u.ID
		return nil
	})
	return projectID, userID
}

func testProjectCRUD(t *testing.T, s scrum.Store) {
	ctx := context.Background()
	var created models.Project
	inTx(t, s, func(tx scrum.Tx) error {
		var err error
		created, err = tx.CreateProject(ctx, models.Project{Name: "Apollo", Description: "moon"})
		return err
	})
	if created.ID == 0 || created.Name != "Apollo" || created.Description != "moon" {
		t.Fatalf("unexpected project: %+v", created)
	}

	err := s.InTx(ctx, func(tx scrum.Tx) error {
		_, err := tx.CreateProject(ctx, models.Project{Name: "Apollo"})
		return err
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict for duplicate name, got %v", err)
	}

	inTx(t, s, func(tx scrum.Tx) error {
		updated, err := tx.UpdateProject(ctx, models.Project{ID: created.ID, Name: "Artemis", Description: "again"})
		if err != nil {
			return err
		}
		if updated.Name != "Artemis" || updated.Description != "again" {
			t.Errorf("unexpected update result: %+v", updated)
		}
		list, err := tx.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(list) != 1 {
			t.Errorf("expected 1 project, got %d", len(list))
		}
		return tx.DeleteProject(ctx, created.ID)
	})

	err = s.InTx(ctx, func(tx scrum.Tx) error {
		_, err := tx.GetProject(ctx, created.ID)
		return err
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	err = s.InTx(ctx, func(tx scrum.Tx) error {
		return tx.DeleteProject(ctx, created.ID)
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}
}

func testUserUnique(t *testing.T, s scrum.Store) {
	ctx := context.Background()
	inTx(t, s, func(tx scrum.Tx) error {
		u, err := tx.CreateUser(ctx, models.User{Username: "ada", Email: "ada@example.com", FirstName: "Ada", Role: models.RoleScrumMaster})
		if err != nil {
			return err
		}
		got, err := tx.GetUser(ctx, u.ID)
		if err != nil {
			return err
		}
		if got.Username != "ada" || got.Role != models.RoleScrumMaster || got.FirstName != "Ada" {
			t.Errorf("unexpected user: %+v", got)
		}
		return nil
	})
	err := s.InTx(ctx, func(tx scrum.Tx) error {
		_, err := tx.CreateUser(ctx, models.User{Username: "ada", Role: models.RoleDeveloper})
		return err
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
}

func testSingleActiveSprint(t *testing.T, s scrum.Store) {
	ctx := context.Background()
	projectID, _ := Seed(t, s, "single-active")

	var first, second models.Sprint
	inTx(t, s, func(tx scrum.Tx) error {
		var err error
		first, err = tx.CreateSprint(ctx, models.Sprint{ProjectID: projectID, Name: "S1", StartDate: base, EndDate: base.Add(14 * 24 * time.Hour), Active: true})
		if err != nil {
			return err
		}
		second, err = tx.CreateSprint(ctx, models.Sprint{ProjectID: projectID, Name: "S2", StartDate: base, EndDate: base.Add(14 * 24 * time.Hour)})
		return err
	})

	err := s.InTx(ctx, func(tx scrum.Tx) error {
		second.Active = true
		return tx.UpdateSprint(ctx, second)
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict activating a second sprint, got %v", err)
	}

	inTx(t, s, func(tx scrum.Tx) error {
		active, err := tx.ActiveSprint(ctx, projectID)
		if err != nil {
			return err
		}
		if active.ID != first.ID {
			t.Errorf("expected active sprint %d, got %d", first.ID, active.ID)
		}
		return nil
	})

	inTx(t, s, func(tx scrum.Tx) error {
		first.Active = false
		done := base.Add(time.Hour)
		first.CompletedAt = &done
		if err := tx.UpdateSprint(ctx, first); err != nil {
			return err
		}
		second.Active = true
		return tx.UpdateSprint(ctx, second)
	})

	otherProject, _ := Seed(t, s, "single-active-other")
	inTx(t, s, func(tx scrum.Tx) error {
		_, err := tx.CreateSprint(ctx, models.Sprint{ProjectID: otherProject, Name: "O1", StartDate: base, EndDate: base, Active: true})
		return err
	})

	err = s.InTx(ctx, func(tx scrum.Tx) error {
		_, err := tx.ActiveSprint(ctx, otherProject+1000)
		return err
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found for project without sprints, got %v", err)
	}
}

func testSprintOrder(t *testing.T, s scrum.Store) {
	ctx := context.Background()
	projectID, _ := Seed(t, s, "sprint-order")
	goal := "ship it"

	inTx(t, s, func(tx scrum.Tx) error {
		for i, name := range []string{"early", "late", "middle"} {
			offset := []int{0, 28, 14}[i]
			start := base.AddDate(0, 0, offset)
			sp := models.Sprint{ProjectID: projectID, Name: name, StartDate: start, EndDate: start.AddDate(0, 0, 13)}
			if name == "late" {
				sp.Goal = &goal
			}
			if _, err := tx.CreateSprint(ctx, sp); err != nil {
				return err
			}
		}
		return nil
	})

	inTx(t, s, func(tx scrum.Tx) error {
		list, err := tx.ListSprints(ctx, projectID)
		if err != nil {
			return err
		}
		if len(list) != 3 {
			t.Fatalf("expected 3 sprints, got %d", len(list))
		}
		want := []string{"late", "middle", "early"}
		for i, sp := range list {
			if sp.Name != want[i] {
				t.Errorf("position %d: expected %q, got %q", i, want[i], sp.Name)
			}
		}
		if list[0].Goal == nil || *list[0].Goal != goal {
			t.Errorf("expected goal %q, got %v", goal, list[0].Goal)
		}
		if list[1].Goal != nil {
			t.Errorf("expected nil goal, got %q", *list[1].Goal)
		}
		if !list[0].StartDate.Equal(base.AddDate(0, 0, 28)) {
			t.Errorf("start date not preserved: %v", list[0].StartDate)
		}
		if list[0].State() != models.SprintPlanned {
			t.Errorf("expected planned, got %s", list[0].State())
		}
		return nil
	})
}

func testStoryFilters(t *testing.T, s scrum.Store) {
	ctx := context.Background()
	projectID, reporterID := Seed(t, s, "story-filters")

	var sprint models.Sprint
	var ids []int64
	inTx(t, s, func(tx scrum.Tx) error {
		var err error
		sprint, err = tx.CreateSprint(ctx, models.Sprint{ProjectID: projectID, Name: "S", StartDate: base, EndDate: base})
		if err != nil {
			return err
		}
		fixtures := []struct {
			title    string
			order    int
			priority models.Priority
			status   models.StoryStatus
			inSprint bool
			assigned bool
		}{
			{"c", 2, models.PriorityLow, models.StatusBacklog, false, false},
			{"a", 1, models.PriorityLow, models.StatusTodo, true, true},
			{"b", 1, models.PriorityCritical, models.StatusBacklog, false, false},
			{"d", 3, models.PriorityHigh, models.StatusDone, true, false},
		}
		for _, fx := range fixtures {
			st := models.Story{
				ProjectID:  projectID,
				Title:      fx.title,
				Priority:   fx.priority,
				Status:     fx.status,
				ReporterID: reporterID,
				OrderIndex: fx.order,
			}
			if fx.inSprint {
				st.SprintID = &sprint.ID
			}
			if fx.assigned {
				st.AssigneeID = &reporterID
			}
			created, err := tx.CreateStory(ctx, st)
			if err != nil {
				return err
			}
			ids = append(ids, created.ID)
		}
		return nil
	})

	titles := func(stories []models.Story) []string {
		out := make([]string, len(stories))
		for i, st := range stories {
			out[i] = st.Title
		}
		return out
	}
	check := func(name string, filter scrum.StoryFilter, want ...string) {
		t.Helper()
		inTx(t, s, func(tx scrum.Tx) error {
			got, err := tx.ListStories(ctx, filter)
			if err != nil {
				return err
			}
			g := titles(got)
			if len(g) != len(want) {
				t.Errorf("%s: expected %v, got %v", name, want, g)
				return nil
			}
			for i := range want {
				if g[i] != want[i] {
					t.Errorf("%s: expected %v, got %v", name, want, g)
					break
				}
			}
			return nil
		})
	}

	check("project", scrum.StoryFilter{ProjectID: &projectID}, "b", "a", "c", "d")
	check("sprint", scrum.StoryFilter{SprintID: &sprint.ID}, "a", "d")
	check("backlog", scrum.StoryFilter{ProjectID: &projectID, Unscheduled: true, Statuses: []models.StoryStatus{models.StatusBacklog}}, "b", "c")
	check("board", scrum.StoryFilter{SprintID: &sprint.ID, Statuses: models.BoardColumns}, "a", "d")
	check("assignee", scrum.StoryFilter{AssigneeID: &reporterID}, "a")

	inTx(t, s, func(tx scrum.Tx) error {
		maxIndex, err := tx.MaxOrderIndex(ctx, projectID)
		if err != nil {
			return err
		}
		if maxIndex != 3 {
			t.Errorf("expected max order index 3, got %d", maxIndex)
		}
		empty, err := tx.MaxOrderIndex(ctx, projectID+1000)
		if err != nil {
			return err
		}
		if empty != 0 {
			t.Errorf("expected 0 for empty project, got %d", empty)
		}
		return nil
	})
}

func testStoryRoundTrip(t *testing.T, s scrum.Store) {
	ctx := context.Background()
	projectID, reporterID := Seed(t, s, "story-roundtrip")

	var story models.Story
	inTx(t, s, func(tx scrum.Tx) error {
		var err error
		story, err = tx.CreateStory(ctx, models.Story{
			ProjectID:          projectID,
			Title:              "Login",
			Description:        "as a user",
			AcceptanceCriteria: "can log in",
			Priority:           models.PriorityHigh,
			Status:             models.StatusBacklog,
			ReporterID:         reporterID,
			OrderIndex:         1,
		})
		return err
	})
	if story.StoryPoints != nil || story.SprintID != nil || story.AssigneeID != nil || story.CompletedAt != nil {
		t.Fatalf("expected nil optional fields, got %+v", story)
	}

	points := 5
	done := base.Add(48 * time.Hour)
	inTx(t, s, func(tx scrum.Tx) error {
		story.StoryPoints = &points
		story.AssigneeID = &reporterID
		story.Status = models.StatusDone
		story.CompletedAt = &done
		if err := tx.UpdateStory(ctx, story); err != nil {
			return err
		}
		got, err := tx.GetStory(ctx, story.ID)
		if err != nil {
			return err
		}
		if got.Points() != 5 || got.Status != models.StatusDone || got.Priority != models.PriorityHigh {
			t.Errorf("unexpected story after update: %+v", got)
		}
		if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
			t.Errorf("expected completed at %v, got %v", done, got.CompletedAt)
		}
		if got.AssigneeID == nil || *got.AssigneeID != reporterID {
			t.Errorf("expected assignee %d, got %v", reporterID, got.AssigneeID)
		}
		if got.ReporterID != reporterID || got.ProjectID != projectID {
			t.Errorf("fixed fields changed: %+v", got)
		}
		return nil
	})

	inTx(t, s, func(tx scrum.Tx) error {
		return tx.DeleteStory(ctx, story.ID)
	})
	err := s.InTx(ctx, func(tx scrum.Tx) error {
		_, err := tx.GetStory(ctx, story.ID)
		return err
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testRollback(t *testing.T, s scrum.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx scrum.Tx) error {
		if _, err := tx.CreateProject(ctx, models.Project{Name: "ghost"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	inTx(t, s, func(tx scrum.Tx) error {
		list, err := tx.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(list) != 0 {
			t.Errorf("expected rollback to discard project, got %d projects", len(list))
		}
		return nil
	})
}

func testProjectCascade(t *testing.T, s scrum.Store) {
	ctx := context.Background()
	projectID, reporterID := Seed(t, s, "cascade")

	var storyID, sprintID int64
	inTx(t, s, func(tx scrum.Tx) error {
		sp, err := tx.CreateSprint(ctx, models.Sprint{ProjectID: projectID, Name: "S", StartDate: base, EndDate: base})
		if err != nil {
			return err
		}
		st, err := tx.CreateStory(ctx, models.Story{ProjectID: projectID, Title: "t", Status: models.StatusTodo, ReporterID: reporterID, SprintID: &sp.ID})
		if err != nil {
			return err
		}
		sprintID, storyID = sp.ID, st.ID
		return tx.DeleteProject(ctx, projectID)
	})

	inTx(t, s, func(tx scrum.Tx) error {
		if _, err := tx.GetStory(ctx, storyID); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected story removed with project, got %v", err)
		}
		if _, err := tx.GetSprint(ctx, sprintID); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected sprint removed with project, got %v", err)
		}
		return nil
	})
}
