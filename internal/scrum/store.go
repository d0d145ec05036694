package scrum

import (
	"context"

	"sprintboard/internal/models"
)

// Store is the persistence contract of the engine. Implementations: *sqlite.Store,
// *postgres.Store and *memory.Store.
//
// InTx runs fn inside one atomic transaction. When fn returns an error nothing fn wrote
// is kept. Implementations must reject a second active sprint for a project at the
// storage level and report it as models.ErrConflict.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx groups the record stores visible inside a transaction.
type Tx interface {
	ProjectStore
	UserStore
	SprintStore
	StoryStore
}

// ProjectStore holds projects. Deleting a project removes its sprints and stories.
type ProjectStore interface {
	GetProject(ctx context.Context, id int64) (models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	CreateProject(ctx context.Context, p models.Project) (models.Project, error)
	UpdateProject(ctx context.Context, p models.Project) (models.Project, error)
	DeleteProject(ctx context.Context, id int64) error
}

// UserStore holds users.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, u models.User) (models.User, error)
}

// SprintStore holds sprints.
type SprintStore interface {
	// GetSprint returns the sprint and, where the backend supports it, locks its row
	// until the transaction ends.
	GetSprint(ctx context.Context, id int64) (models.Sprint, error)
	// ActiveSprint returns the single active sprint of a project or models.ErrNotFound.
	ActiveSprint(ctx context.Context, projectID int64) (models.Sprint, error)
	// ListSprints returns the sprints of a project, newest start date first.
	ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error)
	CreateSprint(ctx context.Context, s models.Sprint) (models.Sprint, error)
	UpdateSprint(ctx context.Context, s models.Sprint) error
}

// StoryStore holds stories.
type StoryStore interface {
	GetStory(ctx context.Context, id int64) (models.Story, error)
	// ListStories returns matching stories ordered by order index, then priority
	// (highest first), then id.
	ListStories(ctx context.Context, filter StoryFilter) ([]models.Story, error)
	// MaxOrderIndex returns the highest order index of a project, zero when it has no stories.
	MaxOrderIndex(ctx context.Context, projectID int64) (int, error)
	CreateStory(ctx context.Context, s models.Story) (models.Story, error)
	UpdateStory(ctx context.Context, s models.Story) error
	DeleteStory(ctx context.Context, id int64) error
}

// StoryFilter narrows ListStories. Zero fields do not filter.
type StoryFilter struct {
	ProjectID   *int64
	SprintID    *int64
	Unscheduled bool
	Statuses    []models.StoryStatus
	AssigneeID  *int64
}

// Match reports whether s satisfies the filter. Backends without a query language use it.
func (f StoryFilter) Match(s models.Story) bool {
	if f.ProjectID != nil && s.ProjectID != *f.ProjectID {
		return false
	}
	if f.SprintID != nil && !s.InSprint(*f.SprintID) {
		return false
	}
	if f.Unscheduled && s.SprintID != nil {
		return false
	}
	if f.AssigneeID != nil && (s.AssigneeID == nil || *s.AssigneeID != *f.AssigneeID) {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, st := range f.Statuses {
			if st == s.Status {
				return true
			}
		}
		return false
	}
	return true
}
