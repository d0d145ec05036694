package models

import (
	"fmt"
	"strings"
	"time"
)

// Project groups sprints and stories. Projects are referenced by id only.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is the team role of a user. Roles map to capability sets in package scrum.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleScrumMaster  Role = "SCRUM_MASTER"
	RoleProductOwner Role = "PRODUCT_OWNER"
	RoleDeveloper    Role = "DEVELOPER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleScrumMaster, RoleProductOwner, RoleDeveloper:
		return true
	}
	return false
}

// User is a team member that can report, own or move stories.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// SprintState is derived from the active flag and completion timestamp.
type SprintState string

const (
	SprintPlanned   SprintState = "PLANNED"
	SprintActive    SprintState = "ACTIVE"
	SprintCompleted SprintState = "COMPLETED"
)

// Sprint is a time-boxed execution window of a project.
type Sprint struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Name        string     `json:"name"`
	Goal        *string    `json:"goal,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	Active      bool       `json:"active"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// State returns the lifecycle state of the sprint.
func (s Sprint) State() SprintState {
	switch {
	case s.Active:
		return SprintActive
	case s.CompletedAt != nil:
		return SprintCompleted
	default:
		return SprintPlanned
	}
}

// StoryStatus is the position of a story in the backlog or on the board.
type StoryStatus string

const (
	StatusBacklog    StoryStatus = "BACKLOG"
	StatusTodo       StoryStatus = "TODO"
	StatusInProgress StoryStatus = "IN_PROGRESS"
	StatusInReview   StoryStatus = "IN_REVIEW"
	StatusDone       StoryStatus = "DONE"
	StatusCancelled  StoryStatus = "CANCELLED"
)

// BoardColumns lists the statuses shown on the kanban board, in column order.
var BoardColumns = []StoryStatus{StatusTodo, StatusInProgress, StatusInReview, StatusDone}

// ValidStoryStatuses enumerates every status a story may hold.
var ValidStoryStatuses = map[StoryStatus]struct{}{
	StatusBacklog:    {},
	StatusTodo:       {},
	StatusInProgress: {},
	StatusInReview:   {},
	StatusDone:       {},
	StatusCancelled:  {},
}

// ParseStoryStatus accepts any casing and dashes or underscores.
func ParseStoryStatus(raw string) (StoryStatus, error) {
	s := StoryStatus(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	if _, ok := ValidStoryStatuses[s]; !ok {
		return "", fmt.Errorf("%w: unknown story status %q", ErrInvalid, raw)
	}
	return s, nil
}

// OnBoard reports whether the status is one of the board columns.
func (s StoryStatus) OnBoard() bool {
	for _, c := range BoardColumns {
		if c == s {
			return true
		}
	}
	return false
}

// Story is a unit of backlog work.
type Story struct {
	ID                 int64       `json:"id"`
	ProjectID          int64       `json:"project_id"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	AcceptanceCriteria string      `json:"acceptance_criteria"`
	StoryPoints        *int        `json:"story_points,omitempty"`
	Priority           Priority    `json:"priority"`
	Status             StoryStatus `json:"status"`
	AssigneeID         *int64      `json:"assignee_id,omitempty"`
	ReporterID         int64       `json:"reporter_id"`
	SprintID           *int64      `json:"sprint_id,omitempty"`
	OrderIndex         int         `json:"order_index"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
}

// Points returns the story point estimate, zero when unestimated.
func (s Story) Points() int {
	if s.StoryPoints == nil {
		return 0
	}
	return *s.StoryPoints
}

// InSprint reports whether the story is linked to the given sprint.
func (s Story) InSprint(sprintID int64) bool {
	return s.SprintID != nil && *s.SprintID == sprintID
}

// SetStatus changes the status and stamps CompletedAt the first time the story reaches DONE.
// Leaving DONE keeps the first completion timestamp.
func (s *Story) SetStatus(status StoryStatus, now time.Time) {
	s.Status = status
	if status == StatusDone && s.CompletedAt == nil {
		at := now
		s.CompletedAt = &at
	}
}

// ReturnToBacklog unlinks the story from its sprint and resets it to BACKLOG.
func (s *Story) ReturnToBacklog() {
	s.SprintID = nil
	s.Status = StatusBacklog
}

// SprintSummary aggregates counts over every story linked to a sprint.
type SprintSummary struct {
	TotalStories     int `json:"total_stories"`
	CompletedStories int `json:"completed_stories"`
	TotalPoints      int `json:"total_points"`
	CompletedPoints  int `json:"completed_points"`
}

// SprintView is a sprint together with its linked stories.
type SprintView struct {
	Sprint
	State   SprintState   `json:"state"`
	Stories []Story       `json:"stories"`
	Summary SprintSummary `json:"summary"`
}

// SprintMetrics are derived per board view and never persisted.
type SprintMetrics struct {
	TotalStories         int     `json:"total_stories"`
	CompletedStories     int     `json:"completed_stories"`
	InProgressStories    int     `json:"in_progress_stories"`
	TodoStories          int     `json:"todo_stories"`
	TotalPoints          int     `json:"total_points"`
	CompletedPoints      int     `json:"completed_points"`
	CompletionPercentage float64 `json:"completion_percentage"`
	DaysRemaining        int     `json:"days_remaining"`
}

// BoardColumn is one kanban column.
type BoardColumn struct {
	Status  StoryStatus `json:"status"`
	Stories []Story     `json:"stories"`
}

// Board is the kanban view over an active sprint.
type Board struct {
	SprintID    int64         `json:"sprint_id"`
	SprintName  string        `json:"sprint_name"`
	ProjectID   int64         `json:"project_id"`
	ProjectName string        `json:"project_name"`
	EndDate     time.Time     `json:"end_date"`
	Columns     []BoardColumn `json:"columns"`
	Metrics     SprintMetrics `json:"metrics"`
}

// Column returns the column for status, or an empty column when it is not on the board.
func (b Board) Column(status StoryStatus) BoardColumn {
	for _, c := range b.Columns {
		if c.Status == status {
			return c
		}
	}
	return BoardColumn{Status: status}
}
