package scrum

import (
	"context"
	"log/slog"
	"time"

	"sprintboard/internal/models"
)

// Board builds the kanban view of an active sprint.
func (m *Manager) Board(ctx context.Context, caps Capabilities, sprintID int64) (board models.Board, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "get_board", start, err) }()

	if err = caps.Require(CapViewBoard); err != nil {
		return models.Board{}, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		sprint, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		board, err = m.boardFor(ctx, tx, sprint)
		return err
	})
	return board, err
}

// ActiveBoard builds the kanban view of the project's active sprint.
func (m *Manager) ActiveBoard(ctx context.Context, caps Capabilities, projectID int64) (board models.Board, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "get_active_board", start, err) }()

	if err = caps.Require(CapViewBoard); err != nil {
		return models.Board{}, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		sprint, err := tx.ActiveSprint(ctx, projectID)
		if err != nil {
			return err
		}
		board, err = m.boardFor(ctx, tx, sprint)
		return err
	})
	return board, err
}

func (m *Manager) boardFor(ctx context.Context, tx Tx, sprint models.Sprint) (models.Board, error) {
	if !sprint.Active {
		return models.Board{}, conflictf("sprint %d is not active", sprint.ID)
	}
	project, err := tx.GetProject(ctx, sprint.ProjectID)
	if err != nil {
		return models.Board{}, err
	}
	stories, err := tx.ListStories(ctx, StoryFilter{
		ProjectID: &sprint.ProjectID,
		SprintID:  &sprint.ID,
		Statuses:  models.BoardColumns,
	})
	if err != nil {
		return models.Board{}, err
	}
	return BuildBoard(project, sprint, stories, m.now()), nil
}

// BuildBoard groups stories into the fixed board columns and computes the sprint metrics.
// Stories outside the board columns are ignored.
func BuildBoard(project models.Project, sprint models.Sprint, stories []models.Story, now time.Time) models.Board {
	columns := make([]models.BoardColumn, len(models.BoardColumns))
	index := make(map[models.StoryStatus]int, len(models.BoardColumns))
	for i, status := range models.BoardColumns {
		columns[i] = models.BoardColumn{Status: status, Stories: []models.Story{}}
		index[status] = i
	}

	onBoard := make([]models.Story, 0, len(stories))
	for _, s := range stories {
		i, ok := index[s.Status]
		if !ok {
			continue
		}
		columns[i].Stories = append(columns[i].Stories, s)
		onBoard = append(onBoard, s)
	}

	return models.Board{
		SprintID:    sprint.ID,
		SprintName:  sprint.Name,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		EndDate:     sprint.EndDate,
		Columns:     columns,
		Metrics:     ComputeMetrics(onBoard, sprint.EndDate, now),
	}
}

// ComputeMetrics derives board metrics from the stories shown on the board.
func ComputeMetrics(stories []models.Story, endDate, now time.Time) models.SprintMetrics {
	var mt models.SprintMetrics
	for _, s := range stories {
		mt.TotalStories++
		mt.TotalPoints += s.Points()
		switch s.Status {
		case models.StatusDone:
			mt.CompletedStories++
			mt.CompletedPoints += s.Points()
		case models.StatusInProgress:
			mt.InProgressStories++
		case models.StatusTodo:
			mt.TodoStories++
		}
	}
	if mt.TotalStories > 0 {
		mt.CompletionPercentage = float64(mt.CompletedStories) / float64(mt.TotalStories) * 100
	}
	mt.DaysRemaining = DaysRemaining(endDate, now)
	return mt
}

// DaysRemaining returns the whole days left until endDate, never negative.
func DaysRemaining(endDate, now time.Time) int {
	days := int(endDate.Sub(now) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}

// MoveInput describes a board move. AssigneeID and Comment are optional.
type MoveInput struct {
	StoryID    int64
	Status     models.StoryStatus
	AssigneeID *int64
	Comment    string
}

// MoveStory changes the status of a story whose sprint is active, optionally reassigning it.
func (m *Manager) MoveStory(ctx context.Context, caps Capabilities, in MoveInput) (story models.Story, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, "move_story", start, err) }()

	if err = caps.Require(CapMoveStories); err != nil {
		return models.Story{}, err
	}
	if _, ok := models.ValidStoryStatuses[in.Status]; !ok {
		return models.Story{}, invalidf("unknown story status %q", in.Status)
	}

	now := m.now()
	var from models.StoryStatus
	err = m.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.GetStory(ctx, in.StoryID)
		if err != nil {
			return err
		}
		if current.SprintID == nil {
			return conflictf("story %d is not in a sprint", in.StoryID)
		}
		sprint, err := tx.GetSprint(ctx, *current.SprintID)
		if err != nil {
			return err
		}
		if !sprint.Active {
			return conflictf("story %d is not in an active sprint", in.StoryID)
		}
		if in.AssigneeID != nil {
			assignee, err := tx.GetUser(ctx, *in.AssigneeID)
			if err != nil {
				return err
			}
			current.AssigneeID = &assignee.ID
		}

		from = current.Status
		current.SetStatus(in.Status, now)
		if err := tx.UpdateStory(ctx, current); err != nil {
			return err
		}
		story, err = tx.GetStory(ctx, in.StoryID)
		return err
	})
	if err != nil {
		return models.Story{}, err
	}

	recordMove(ctx, from, story.Status)
	attrs := []any{
		slog.Int64("story_id", story.ID),
		slog.String("from", string(from)),
		slog.String("to", string(story.Status)),
	}
	if in.Comment != "" {
		attrs = append(attrs, slog.String("comment", in.Comment))
	}
	m.logger.Info("story moved", attrs...)
	return story, nil
}

// MoveStoryToColumn is MoveStory without reassignment or comment.
func (m *Manager) MoveStoryToColumn(ctx context.Context, caps Capabilities, storyID int64, status models.StoryStatus) (models.Story, error) {
	return m.MoveStory(ctx, caps, MoveInput{StoryID: storyID, Status: status})
}
