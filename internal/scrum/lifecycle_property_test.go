package scrum_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"pgregory.net/rapid"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
	"sprintboard/internal/storage/memory"
)

// Random sequences of lifecycle calls must never leave a project with two active sprints,
// a story linked to a completed sprint unless it is DONE, or a completed sprint back in play.
func TestLifecycleInvariants_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		mgr := scrum.NewManager(memory.New(logger), logger, scrum.WithClock(func() time.Time { return clock }))
		caps := scrum.SystemCapabilities()

		reporter, err := mgr.CreateUser(ctx, caps, models.User{Username: "r"})
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		var projects []int64
		for _, name := range []string{"p1", "p2"} {
			p, err := mgr.CreateProject(ctx, caps, name, "")
			if err != nil {
				t.Fatalf("create project: %v", err)
			}
			projects = append(projects, p.ID)
		}

		var sprints, stories []int64
		completed := map[int64]bool{}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clock = clock.Add(time.Hour)
			project := rapid.SampledFrom(projects).Draw(t, "project")
			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				view, err := mgr.CreateSprint(ctx, caps, scrum.SprintInput{
					ProjectID: project,
					Name:      "s",
					StartDate: clock,
					EndDate:   clock.Add(7 * 24 * time.Hour),
				})
				if err == nil {
					sprints = append(sprints, view.ID)
				} else if !errors.Is(err, models.ErrConflict) {
					t.Fatalf("create sprint: %v", err)
				}
			case 1:
				s, err := mgr.CreateStory(ctx, caps, reporter.ID, scrum.StoryInput{ProjectID: project, Title: "t"})
				if err != nil {
					t.Fatalf("create story: %v", err)
				}
				stories = append(stories, s.ID)
			case 2:
				if len(sprints) == 0 {
					continue
				}
				id := rapid.SampledFrom(sprints).Draw(t, "start")
				if _, err := mgr.StartSprint(ctx, caps, id); err == nil && completed[id] {
					t.Fatalf("completed sprint %d restarted", id)
				}
			case 3:
				if len(sprints) == 0 {
					continue
				}
				id := rapid.SampledFrom(sprints).Draw(t, "complete")
				if _, err := mgr.CompleteSprint(ctx, caps, id); err == nil {
					completed[id] = true
				}
			case 4:
				if len(sprints) == 0 || len(stories) == 0 {
					continue
				}
				id := rapid.SampledFrom(sprints).Draw(t, "assign")
				picked := rapid.SliceOfN(rapid.SampledFrom(stories), 0, 3).Draw(t, "stories")
				_, _ = mgr.AssignStories(ctx, caps, id, picked)
			case 5:
				if len(stories) == 0 {
					continue
				}
				id := rapid.SampledFrom(stories).Draw(t, "move")
				status := rapid.SampledFrom(models.BoardColumns).Draw(t, "status")
				_, _ = mgr.MoveStoryToColumn(ctx, caps, id, status)
			case 6:
				if len(sprints) == 0 || len(stories) == 0 {
					continue
				}
				id := rapid.SampledFrom(sprints).Draw(t, "remove")
				_, _ = mgr.RemoveStories(ctx, caps, id, []int64{rapid.SampledFrom(stories).Draw(t, "removed")})
			}

			for _, p := range projects {
				views, err := mgr.SprintsByProject(ctx, caps, p)
				if err != nil {
					t.Fatalf("list sprints: %v", err)
				}
				active := 0
				for _, v := range views {
					if v.Active {
						active++
					}
					if completed[v.ID] && v.State != models.SprintCompleted {
						t.Fatalf("sprint %d left COMPLETED", v.ID)
					}
					if v.State == models.SprintCompleted {
						for _, s := range v.Stories {
							if s.Status != models.StatusDone {
								t.Fatalf("completed sprint %d holds %s story %d", v.ID, s.Status, s.ID)
							}
						}
					}
				}
				if active > 1 {
					t.Fatalf("project %d has %d active sprints", p, active)
				}
			}
		}
	})
}
