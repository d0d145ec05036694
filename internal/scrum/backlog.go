package scrum

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sprintboard/internal/models"
)

const maxStoryTitleLen = 200

// StoryInput carries the editable fields of a story. Nil pointers keep defaults on create.
type StoryInput struct {
	ProjectID          int64
	Title              string
	Description        string
	AcceptanceCriteria string
	StoryPoints        *int
	Priority           *models.Priority
	Status             *models.StoryStatus
	AssigneeID         *int64
	OrderIndex         *int
}

func (in StoryInput) validate() error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return invalidf("story title must not be empty")
	}
	if len(title) > maxStoryTitleLen {
		return invalidf("story title exceeds %d characters", maxStoryTitleLen)
	}
	if in.StoryPoints != nil && *in.StoryPoints < 0 {
		return invalidf("story points must not be negative")
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return invalidf("unknown priority %d", int(*in.Priority))
	}
	if in.Status != nil {
		if _, ok := models.ValidStoryStatuses[*in.Status]; !ok {
			return invalidf("unknown story status %q", *in.Status)
		}
	}
	return nil
}

// CreateStory adds a story to a project backlog. Without an explicit order index the
// story is appended after the last one.
func (m *Manager) CreateStory(ctx context.Context, caps Capabilities, reporterID int64, in StoryInput) (story models.Story, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "create_story", start, err) }()

	if err = caps.Require(CapCreateStories); err != nil {
		return models.Story{}, err
	}
	if err = in.validate(); err != nil {
		return models.Story{}, err
	}

	now := m.now()
	err = m.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.GetProject(ctx, in.ProjectID); err != nil {
			return err
		}
		reporter, err := tx.GetUser(ctx, reporterID)
		if err != nil {
			return err
		}
		s := models.Story{
			ProjectID:          in.ProjectID,
			Title:              strings.TrimSpace(in.Title),
			Description:        strings.TrimSpace(in.Description),
			AcceptanceCriteria: strings.TrimSpace(in.AcceptanceCriteria),
			StoryPoints:        in.StoryPoints,
			Priority:           models.PriorityMedium,
			Status:             models.StatusBacklog,
			ReporterID:         reporter.ID,
		}
		if in.Priority != nil {
			s.Priority = *in.Priority
		}
		if in.Status != nil {
			s.SetStatus(*in.Status, now)
		}
		if in.AssigneeID != nil {
			assignee, err := tx.GetUser(ctx, *in.AssigneeID)
			if err != nil {
				return err
			}
			s.AssigneeID = &assignee.ID
		}
		if in.OrderIndex != nil {
			s.OrderIndex = *in.OrderIndex
		} else {
			maxIndex, err := tx.MaxOrderIndex(ctx, in.ProjectID)
			if err != nil {
				return err
			}
			s.OrderIndex = maxIndex + 1
		}
		story, err = tx.CreateStory(ctx, s)
		return err
	})
	if err != nil {
		return models.Story{}, err
	}
	m.logger.Info("story created", slog.Int64("story_id", story.ID), slog.Int64("project_id", story.ProjectID))
	return story, nil
}

// UpdateStory rewrites the editable fields of a story. A nil AssigneeID clears the assignee;
// nil Priority, Status and OrderIndex keep the current values. Project and sprint links are
// not editable here.
func (m *Manager) UpdateStory(ctx context.Context, caps Capabilities, storyID int64, in StoryInput) (story models.Story, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "update_story", start, err) }()

	if err = caps.Require(CapGroomBacklog); err != nil {
		return models.Story{}, err
	}
	if err = in.validate(); err != nil {
		return models.Story{}, err
	}

	now := m.now()
	err = m.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.GetStory(ctx, storyID)
		if err != nil {
			return err
		}
		current.Title = strings.TrimSpace(in.Title)
		current.Description = strings.TrimSpace(in.Description)
		current.AcceptanceCriteria = strings.TrimSpace(in.AcceptanceCriteria)
		current.StoryPoints = in.StoryPoints
		if in.Priority != nil {
			current.Priority = *in.Priority
		}
		if in.Status != nil {
			if err := ensureNotClosed(ctx, tx, current, *in.Status); err != nil {
				return err
			}
			current.SetStatus(*in.Status, now)
		}
		current.AssigneeID = nil
		if in.AssigneeID != nil {
			assignee, err := tx.GetUser(ctx, *in.AssigneeID)
			if err != nil {
				return err
			}
			current.AssigneeID = &assignee.ID
		}
		if in.OrderIndex != nil {
			current.OrderIndex = *in.OrderIndex
		}
		if err := tx.UpdateStory(ctx, current); err != nil {
			return err
		}
		story, err = tx.GetStory(ctx, storyID)
		return err
	})
	if err != nil {
		return models.Story{}, err
	}
	m.logger.Info("story updated", slog.Int64("story_id", storyID))
	return story, nil
}

// SetStoryStatus changes a story's status outside the board. Only DONE stories of a completed
// sprint are frozen; other sprint states are not checked.
func (m *Manager) SetStoryStatus(ctx context.Context, caps Capabilities, storyID int64, status models.StoryStatus) (story models.Story, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "set_story_status", start, err) }()

	if err = caps.Require(CapMoveStories); err != nil {
		return models.Story{}, err
	}
	if _, ok := models.ValidStoryStatuses[status]; !ok {
		return models.Story{}, invalidf("unknown story status %q", status)
	}

	now := m.now()
	var from models.StoryStatus
	err = m.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.GetStory(ctx, storyID)
		if err != nil {
			return err
		}
		from = current.Status
		if err := ensureNotClosed(ctx, tx, current, status); err != nil {
			return err
		}
		current.SetStatus(status, now)
		if err := tx.UpdateStory(ctx, current); err != nil {
			return err
		}
		story, err = tx.GetStory(ctx, storyID)
		return err
	})
	if err != nil {
		return models.Story{}, err
	}
	recordMove(ctx, from, status)
	return story, nil
}

// DeleteStory removes a story. Stories on an active sprint's board cannot be deleted.
func (m *Manager) DeleteStory(ctx context.Context, caps Capabilities, storyID int64) (err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "delete_story", start, err) }()

	if err = caps.Require(CapDeleteStories); err != nil {
		return err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		story, err := tx.GetStory(ctx, storyID)
		if err != nil {
			return err
		}
		if story.SprintID != nil {
			sprint, err := tx.GetSprint(ctx, *story.SprintID)
			if err != nil {
				return err
			}
			if sprint.Active {
				return conflictf("story %d is on active sprint %d", storyID, sprint.ID)
			}
		}
		return tx.DeleteStory(ctx, storyID)
	})
	if err != nil {
		return err
	}
	m.logger.Info("story deleted", slog.Int64("story_id", storyID))
	return nil
}

// GetStory returns one story.
func (m *Manager) GetStory(ctx context.Context, caps Capabilities, storyID int64) (story models.Story, err error) {
	if err = caps.Require(CapViewBoard); err != nil {
		return models.Story{}, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		story, err = tx.GetStory(ctx, storyID)
		return err
	})
	return story, err
}

// ProjectStories lists every story of a project in backlog order.
func (m *Manager) ProjectStories(ctx context.Context, caps Capabilities, projectID int64) ([]models.Story, error) {
	return m.projectStories(ctx, caps, projectID, StoryFilter{ProjectID: &projectID})
}

// Backlog lists the unscheduled BACKLOG stories of a project in backlog order.
func (m *Manager) Backlog(ctx context.Context, caps Capabilities, projectID int64) ([]models.Story, error) {
	return m.projectStories(ctx, caps, projectID, StoryFilter{
		ProjectID:   &projectID,
		Unscheduled: true,
		Statuses:    []models.StoryStatus{models.StatusBacklog},
	})
}

func (m *Manager) projectStories(ctx context.Context, caps Capabilities, projectID int64, filter StoryFilter) ([]models.Story, error) {
	if err := caps.Require(CapViewBoard); err != nil {
		return nil, err
	}
	var stories []models.Story
	err := m.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return err
		}
		var err error
		stories, err = tx.ListStories(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	if stories == nil {
		stories = []models.Story{}
	}
	return stories, nil
}

// StoriesByAssignee lists the stories assigned to a user across projects. Callers may list
// their own stories; listing someone else's needs CapManageUsers.
func (m *Manager) StoriesByAssignee(ctx context.Context, caps Capabilities, callerID, userID int64) ([]models.Story, error) {
	if err := caps.Require(CapViewBoard); err != nil {
		return nil, err
	}
	if callerID != userID {
		if err := caps.Require(CapManageUsers); err != nil {
			return nil, err
		}
	}
	var stories []models.Story
	err := m.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		stories, err = tx.ListStories(ctx, StoryFilter{AssigneeID: &userID})
		return err
	})
	if err != nil {
		return nil, err
	}
	if stories == nil {
		stories = []models.Story{}
	}
	return stories, nil
}

// ensureNotClosed rejects moving a story of a completed sprint out of DONE. Such stories are
// the sprint's history and can no longer be unlinked.
func ensureNotClosed(ctx context.Context, tx Tx, story models.Story, status models.StoryStatus) error {
	if story.SprintID == nil || status == models.StatusDone {
		return nil
	}
	sprint, err := tx.GetSprint(ctx, *story.SprintID)
	if err != nil {
		return err
	}
	if sprint.State() == models.SprintCompleted {
		return conflictf("story %d belongs to completed sprint %d", story.ID, sprint.ID)
	}
	return nil
}
