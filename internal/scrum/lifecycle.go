package scrum

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"sprintboard/internal/models"
)

const maxSprintNameLen = 100

// SprintInput carries the editable fields of a sprint.
type SprintInput struct {
	ProjectID int64
	Name      string
	Goal      *string
	StartDate time.Time
	EndDate   time.Time
	// StoryIDs are assigned to the new sprint in the same transaction. Ignored by UpdateSprint.
	StoryIDs []int64
}

func (in SprintInput) validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return invalidf("sprint name must not be empty")
	}
	if len(name) > maxSprintNameLen {
		return invalidf("sprint name exceeds %d characters", maxSprintNameLen)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return invalidf("sprint start and end dates are required")
	}
	if in.EndDate.Before(in.StartDate) {
		return invalidf("sprint end date precedes start date")
	}
	return nil
}

// CreateSprint creates a planned sprint and optionally assigns stories to it.
func (m *Manager) CreateSprint(ctx context.Context, caps Capabilities, in SprintInput) (view models.SprintView, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "create_sprint", start, err) }()

	if err = caps.Require(CapManageSprints); err != nil {
		return models.SprintView{}, err
	}
	if err = in.validate(); err != nil {
		return models.SprintView{}, err
	}

	err = m.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.GetProject(ctx, in.ProjectID); err != nil {
			return err
		}
		if err := ensureNoActiveSprint(ctx, tx, in.ProjectID); err != nil {
			return err
		}
		sprint, err := tx.CreateSprint(ctx, models.Sprint{
			ProjectID: in.ProjectID,
			Name:      strings.TrimSpace(in.Name),
			Goal:      in.Goal,
			StartDate: in.StartDate,
			EndDate:   in.EndDate,
		})
		if err != nil {
			return err
		}
		if len(in.StoryIDs) > 0 {
			if err := linkStories(ctx, tx, sprint, in.StoryIDs, true); err != nil {
				return err
			}
		}
		view, err = loadSprintView(ctx, tx, sprint.ID)
		return err
	})
	if err != nil {
		return models.SprintView{}, err
	}

	m.logger.Info("sprint created",
		slog.Int64("sprint_id", view.ID),
		slog.Int64("project_id", view.ProjectID),
		slog.Int("stories", len(view.Stories)))
	return view, nil
}

// UpdateSprint renames a sprint and changes its goal and dates. Completed sprints are frozen.
func (m *Manager) UpdateSprint(ctx context.Context, caps Capabilities, sprintID int64, in SprintInput) (view models.SprintView, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "update_sprint", start, err) }()

	if err = caps.Require(CapManageSprints); err != nil {
		return models.SprintView{}, err
	}
	if err = in.validate(); err != nil {
		return models.SprintView{}, err
	}

	err = m.store.InTx(ctx, func(tx Tx) error {
		sprint, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if sprint.State() == models.SprintCompleted {
			return conflictf("sprint %d is completed", sprintID)
		}
		sprint.Name = strings.TrimSpace(in.Name)
		sprint.Goal = in.Goal
		sprint.StartDate = in.StartDate
		sprint.EndDate = in.EndDate
		if err := tx.UpdateSprint(ctx, sprint); err != nil {
			return err
		}
		view, err = loadSprintView(ctx, tx, sprintID)
		return err
	})
	if err != nil {
		return models.SprintView{}, err
	}
	m.logger.Info("sprint updated", slog.Int64("sprint_id", sprintID))
	return view, nil
}

// StartSprint activates a planned sprint and moves its BACKLOG stories to TODO.
func (m *Manager) StartSprint(ctx context.Context, caps Capabilities, sprintID int64) (view models.SprintView, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "start_sprint", start, err) }()

	if err = caps.Require(CapManageSprints); err != nil {
		return models.SprintView{}, err
	}

	now := m.now()
	promoted := 0
	err = m.store.InTx(ctx, func(tx Tx) error {
		sprint, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if sprint.State() == models.SprintCompleted {
			return conflictf("sprint %d is completed", sprintID)
		}
		if err := ensureNoActiveSprint(ctx, tx, sprint.ProjectID); err != nil {
			return err
		}

		sprint.Active = true
		sprint.StartDate = now
		if err := tx.UpdateSprint(ctx, sprint); err != nil {
			return err
		}

		stories, err := tx.ListStories(ctx, StoryFilter{SprintID: &sprintID})
		if err != nil {
			return err
		}
		for _, story := range stories {
			if story.Status != models.StatusBacklog {
				continue
			}
			story.Status = models.StatusTodo
			if err := tx.UpdateStory(ctx, story); err != nil {
				return err
			}
			promoted++
		}

		view, err = loadSprintView(ctx, tx, sprintID)
		return err
	})
	if err != nil {
		return models.SprintView{}, err
	}

	m.logger.Info("sprint started",
		slog.Int64("sprint_id", sprintID),
		slog.Int64("project_id", view.ProjectID),
		slog.Int("promoted", promoted))
	return view, nil
}

// CompleteSprint closes an active sprint. Unfinished stories go back to the backlog;
// DONE stories stay linked as the sprint's historical record.
func (m *Manager) CompleteSprint(ctx context.Context, caps Capabilities, sprintID int64) (view models.SprintView, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "complete_sprint", start, err) }()

	if err = caps.Require(CapManageSprints); err != nil {
		return models.SprintView{}, err
	}

	now := m.now()
	returned := 0
	err = m.store.InTx(ctx, func(tx Tx) error {
		sprint, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if !sprint.Active {
			return conflictf("sprint %d is not active", sprintID)
		}

		sprint.Active = false
		sprint.CompletedAt = &now
		if err := tx.UpdateSprint(ctx, sprint); err != nil {
			return err
		}

		stories, err := tx.ListStories(ctx, StoryFilter{SprintID: &sprintID})
		if err != nil {
			return err
		}
		for _, story := range stories {
			if story.Status == models.StatusDone {
				continue
			}
			story.ReturnToBacklog()
			if err := tx.UpdateStory(ctx, story); err != nil {
				return err
			}
			returned++
		}

		view, err = loadSprintView(ctx, tx, sprintID)
		return err
	})
	if err != nil {
		return models.SprintView{}, err
	}

	m.logger.Info("sprint completed",
		slog.Int64("sprint_id", sprintID),
		slog.Int("done", view.Summary.CompletedStories),
		slog.Int("returned_to_backlog", returned))
	return view, nil
}

// AssignStories replaces the story set of a planned sprint with exactly storyIDs.
// Stories previously linked to the sprint but absent from storyIDs return to the backlog.
func (m *Manager) AssignStories(ctx context.Context, caps Capabilities, sprintID int64, storyIDs []int64) (models.SprintView, error) {
	return m.linkStories(ctx, caps, "assign_stories", sprintID, storyIDs, true)
}

// AddStories links storyIDs to a planned sprint, keeping the stories already linked.
func (m *Manager) AddStories(ctx context.Context, caps Capabilities, sprintID int64, storyIDs []int64) (models.SprintView, error) {
	return m.linkStories(ctx, caps, "add_stories", sprintID, storyIDs, false)
}

func (m *Manager) linkStories(ctx context.Context, caps Capabilities, op string, sprintID int64, storyIDs []int64, replace bool) (view models.SprintView, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, op, start, err) }()

	if err = caps.Require(CapPlanSprints); err != nil {
		return models.SprintView{}, err
	}

	err = m.store.InTx(ctx, func(tx Tx) error {
		sprint, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if err := ensurePlanned(sprint); err != nil {
			return err
		}
		if err := linkStories(ctx, tx, sprint, storyIDs, replace); err != nil {
			return err
		}
		view, err = loadSprintView(ctx, tx, sprintID)
		return err
	})
	if err != nil {
		return models.SprintView{}, err
	}

	m.logger.Info("stories assigned to sprint",
		slog.Int64("sprint_id", sprintID),
		slog.Bool("replace", replace),
		slog.Int("requested", len(storyIDs)),
		slog.Int("linked", len(view.Stories)))
	return view, nil
}

// RemoveStories returns the given stories of a planned sprint to the backlog.
// Ids that are missing or linked elsewhere are skipped.
func (m *Manager) RemoveStories(ctx context.Context, caps Capabilities, sprintID int64, storyIDs []int64) (view models.SprintView, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "remove_stories", start, err) }()

	if err = caps.Require(CapPlanSprints); err != nil {
		return models.SprintView{}, err
	}

	removed := 0
	err = m.store.InTx(ctx, func(tx Tx) error {
		sprint, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if err := ensurePlanned(sprint); err != nil {
			return err
		}
		for _, id := range dedupe(storyIDs) {
			story, err := tx.GetStory(ctx, id)
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !story.InSprint(sprintID) {
				continue
			}
			story.ReturnToBacklog()
			if err := tx.UpdateStory(ctx, story); err != nil {
				return err
			}
			removed++
		}
		view, err = loadSprintView(ctx, tx, sprintID)
		return err
	})
	if err != nil {
		return models.SprintView{}, err
	}

	m.logger.Info("stories removed from sprint", slog.Int64("sprint_id", sprintID), slog.Int("removed", removed))
	return view, nil
}

// GetSprint returns a sprint with its stories.
func (m *Manager) GetSprint(ctx context.Context, caps Capabilities, sprintID int64) (view models.SprintView, err error) {
	if err = caps.Require(CapViewBoard); err != nil {
		return models.SprintView{}, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		view, err = loadSprintView(ctx, tx, sprintID)
		return err
	})
	return view, err
}

// ActiveSprint returns the active sprint of a project or models.ErrNotFound.
func (m *Manager) ActiveSprint(ctx context.Context, caps Capabilities, projectID int64) (view models.SprintView, err error) {
	if err = caps.Require(CapViewBoard); err != nil {
		return models.SprintView{}, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		sprint, err := tx.ActiveSprint(ctx, projectID)
		if err != nil {
			return err
		}
		view, err = loadSprintView(ctx, tx, sprint.ID)
		return err
	})
	return view, err
}

// SprintsByProject lists every sprint of a project, newest start date first.
func (m *Manager) SprintsByProject(ctx context.Context, caps Capabilities, projectID int64) ([]models.SprintView, error) {
	return m.listSprints(ctx, caps, projectID, func(models.Sprint) bool { return true })
}

// UpcomingSprints lists sprints starting after now, soonest first.
func (m *Manager) UpcomingSprints(ctx context.Context, caps Capabilities, projectID int64) ([]models.SprintView, error) {
	now := m.now()
	views, err := m.listSprints(ctx, caps, projectID, func(s models.Sprint) bool {
		return s.StartDate.After(now)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].StartDate.Before(views[j].StartDate) })
	return views, nil
}

// CompletedSprints lists completed sprints, most recently completed first.
func (m *Manager) CompletedSprints(ctx context.Context, caps Capabilities, projectID int64) ([]models.SprintView, error) {
	views, err := m.listSprints(ctx, caps, projectID, func(s models.Sprint) bool {
		return s.CompletedAt != nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].CompletedAt.After(*views[j].CompletedAt) })
	return views, nil
}

func (m *Manager) listSprints(ctx context.Context, caps Capabilities, projectID int64, keep func(models.Sprint) bool) ([]models.SprintView, error) {
	if err := caps.Require(CapViewBoard); err != nil {
		return nil, err
	}
	views := []models.SprintView{}
	err := m.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		sprints, err := tx.ListSprints(ctx, projectID)
		if err != nil {
			return err
		}
		for _, sprint := range sprints {
			if !keep(sprint) {
				continue
			}
			stories, err := tx.ListStories(ctx, StoryFilter{SprintID: &sprint.ID})
			if err != nil {
				return err
			}
			views = append(views, newSprintView(sprint, stories))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

func ensureNoActiveSprint(ctx context.Context, tx Tx, projectID int64) error {
	active, err := tx.ActiveSprint(ctx, projectID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return conflictf("project %d already has active sprint %d", projectID, active.ID)
}

// ensurePlanned rejects story edits on active and completed sprints.
func ensurePlanned(sprint models.Sprint) error {
	switch sprint.State() {
	case models.SprintActive:
		return conflictf("sprint %d is active", sprint.ID)
	case models.SprintCompleted:
		return conflictf("sprint %d is completed", sprint.ID)
	}
	return nil
}

// linkStories validates every requested story before changing any of them.
func linkStories(ctx context.Context, tx Tx, sprint models.Sprint, storyIDs []int64, replace bool) error {
	ids := dedupe(storyIDs)
	wanted := make(map[int64]struct{}, len(ids))
	stories := make([]models.Story, 0, len(ids))
	for _, id := range ids {
		story, err := tx.GetStory(ctx, id)
		if err != nil {
			return err
		}
		if story.ProjectID != sprint.ProjectID {
			return conflictf("story %d belongs to project %d, not %d", id, story.ProjectID, sprint.ProjectID)
		}
		if story.SprintID != nil {
			return conflictf("story %d is already assigned to sprint %d", id, *story.SprintID)
		}
		wanted[id] = struct{}{}
		stories = append(stories, story)
	}

	if replace {
		linked, err := tx.ListStories(ctx, StoryFilter{SprintID: &sprint.ID})
		if err != nil {
			return err
		}
		for _, story := range linked {
			if _, ok := wanted[story.ID]; ok {
				continue
			}
			story.ReturnToBacklog()
			if err := tx.UpdateStory(ctx, story); err != nil {
				return err
			}
		}
	}

	for _, story := range stories {
		sprintID := sprint.ID
		story.SprintID = &sprintID
		if err := tx.UpdateStory(ctx, story); err != nil {
			return err
		}
	}
	return nil
}

func loadSprintView(ctx context.Context, tx Tx, sprintID int64) (models.SprintView, error) {
	sprint, err := tx.GetSprint(ctx, sprintID)
	if err != nil {
		return models.SprintView{}, err
	}
	stories, err := tx.ListStories(ctx, StoryFilter{SprintID: &sprintID})
	if err != nil {
		return models.SprintView{}, err
	}
	return newSprintView(sprint, stories), nil
}

func newSprintView(sprint models.Sprint, stories []models.Story) models.SprintView {
	if stories == nil {
		stories = []models.Story{}
	}
	view := models.SprintView{Sprint: sprint, State: sprint.State(), Stories: stories}
	for _, s := range stories {
		view.Summary.TotalStories++
		view.Summary.TotalPoints += s.Points()
		if s.Status == models.StatusDone {
			view.Summary.CompletedStories++
			view.Summary.CompletedPoints += s.Points()
		}
	}
	return view
}
