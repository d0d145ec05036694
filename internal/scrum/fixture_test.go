package scrum_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
	"sprintboard/internal/storage/memory"
)

type fixture struct {
	t         *testing.T
	ctx       context.Context
	mgr       *scrum.Manager
	caps      scrum.Capabilities
	clock     time.Time
	projectID int64
	userID    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		caps:  scrum.SystemCapabilities(),
		clock: time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.mgr = scrum.NewManager(memory.New(logger), logger, scrum.WithClock(func() time.Time { return f.clock }))

	project, err := f.mgr.CreateProject(f.ctx, f.caps, "Apollo", "moon shot")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	user, err := f.mgr.CreateUser(f.ctx, f.caps, models.User{Username: "ada", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	f.projectID, f.userID = project.ID, user.ID
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) story(title string, points int, status models.StoryStatus) models.Story {
	f.t.Helper()
	return f.storyIn(f.projectID, title, points, status)
}

func (f *fixture) storyIn(projectID int64, title string, points int, status models.StoryStatus) models.Story {
	f.t.Helper()
	p := points
	st := status
	s, err := f.mgr.CreateStory(f.ctx, f.caps, f.userID, scrum.StoryInput{
		ProjectID:   projectID,
		Title:       title,
		StoryPoints: &p,
		Status:      &st,
	})
	if err != nil {
		f.t.Fatalf("create story %q: %v", title, err)
	}
	return s
}

func (f *fixture) sprint(name string, storyIDs ...int64) models.SprintView {
	f.t.Helper()
	return f.sprintIn(f.projectID, name, storyIDs...)
}

func (f *fixture) sprintIn(projectID int64, name string, storyIDs ...int64) models.SprintView {
	f.t.Helper()
	view, err := f.mgr.CreateSprint(f.ctx, f.caps, scrum.SprintInput{
		ProjectID: projectID,
		Name:      name,
		StartDate: f.clock,
		EndDate:   f.clock.Add(14 * 24 * time.Hour),
		StoryIDs:  storyIDs,
	})
	if err != nil {
		f.t.Fatalf("create sprint %q: %v", name, err)
	}
	return view
}

func (f *fixture) start(sprintID int64) models.SprintView {
	f.t.Helper()
	view, err := f.mgr.StartSprint(f.ctx, f.caps, sprintID)
	if err != nil {
		f.t.Fatalf("start sprint %d: %v", sprintID, err)
	}
	return view
}

func (f *fixture) get(storyID int64) models.Story {
	f.t.Helper()
	s, err := f.mgr.GetStory(f.ctx, f.caps, storyID)
	if err != nil {
		f.t.Fatalf("get story %d: %v", storyID, err)
	}
	return s
}

func storyIDs(stories []models.Story) map[int64]bool {
	out := make(map[int64]bool, len(stories))
	for _, s := range stories {
		out[s.ID] = true
	}
	return out
}
