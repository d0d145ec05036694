// Package memory keeps projects, users, sprints and stories in process memory. Records
// live in independent maps keyed by id; stories refer to sprints by id only.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

type state struct {
	nextID   int64
	projects map[int64]models.Project
	users    map[int64]models.User
	sprints  map[int64]models.Sprint
	stories  map[int64]models.Story
}

func (s *state) clone() *state {
	c := &state{
		nextID:   s.nextID,
		projects: make(map[int64]models.Project, len(s.projects)),
		users:    make(map[int64]models.User, len(s.users)),
		sprints:  make(map[int64]models.Sprint, len(s.sprints)),
		stories:  make(map[int64]models.Story, len(s.stories)),
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.sprints {
		c.sprints[k] = cloneSprint(v)
	}
	for k, v := range s.stories {
		c.stories[k] = cloneStory(v)
	}
	return c
}

// Store is an in-memory scrum.Store. Transactions are serialized by one mutex and
// work on a private copy that replaces the committed state only on success.
type Store struct {
	mu     sync.Mutex
	data   *state
	logger *slog.Logger
	now    func() time.Time
}

var _ scrum.Store = (*Store)(nil)

// New returns an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		data: &state{
			projects: map[int64]models.Project{},
			users:    map[int64]models.User{},
			sprints:  map[int64]models.Sprint{},
			stories:  map[int64]models.Story{},
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// InTx runs fn against a staged copy of the data.
func (s *Store) InTx(ctx context.Context, fn func(tx scrum.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &tx{data: s.data.clone(), now: s.now}
	if err := fn(staged); err != nil {
		s.logger.Debug("transaction rolled back", slog.String("error", err.Error()))
		return err
	}
	s.data = staged.data
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

type tx struct {
	data *state
	now  func() time.Time
}

func (t *tx) id() int64 {
	t.data.nextID++
	return t.data.nextID
}

func (t *tx) GetProject(ctx context.Context, id int64) (models.Project, error) {
	p, ok := t.data.projects[id]
	if !ok {
		return models.Project{}, fmt.Errorf("project %d: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (t *tx) ListProjects(ctx context.Context) ([]models.Project, error) {
	out := make([]models.Project, 0, len(t.data.projects))
	for _, p := range t.data.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	for _, existing := range t.data.projects {
		if strings.EqualFold(existing.Name, p.Name) {
			return models.Project{}, fmt.Errorf("%w: project %q already exists", models.ErrConflict, p.Name)
		}
	}
	p.ID = t.id()
	p.CreatedAt = t.now()
	p.UpdatedAt = p.CreatedAt
	t.data.projects[p.ID] = p
	return p, nil
}

func (t *tx) UpdateProject(ctx context.Context, p models.Project) (models.Project, error) {
	current, err := t.GetProject(ctx, p.ID)
	if err != nil {
		return models.Project{}, err
	}
	current.Name = p.Name
	current.Description = p.Description
	current.UpdatedAt = t.now()
	t.data.projects[p.ID] = current
	return current, nil
}

func (t *tx) DeleteProject(ctx context.Context, id int64) error {
	if _, err := t.GetProject(ctx, id); err != nil {
		return err
	}
	delete(t.data.projects, id)
	for sid, sp := range t.data.sprints {
		if sp.ProjectID == id {
			delete(t.data.sprints, sid)
		}
	}
	for sid, st := range t.data.stories {
		if st.ProjectID == id {
			delete(t.data.stories, sid)
		}
	}
	return nil
}

func (t *tx) GetUser(ctx context.Context, id int64) (models.User, error) {
	u, ok := t.data.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return u, nil
}

func (t *tx) ListUsers(ctx context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(t.data.users))
	for _, u := range t.data.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	for _, existing := range t.data.users {
		if existing.Username == u.Username {
			return models.User{}, fmt.Errorf("%w: user %q already exists", models.ErrConflict, u.Username)
		}
	}
	u.ID = t.id()
	t.data.users[u.ID] = u
	return u, nil
}

func (t *tx) GetSprint(ctx context.Context, id int64) (models.Sprint, error) {
	s, ok := t.data.sprints[id]
	if !ok {
		return models.Sprint{}, fmt.Errorf("sprint %d: %w", id, models.ErrNotFound)
	}
	return cloneSprint(s), nil
}

func (t *tx) ActiveSprint(ctx context.Context, projectID int64) (models.Sprint, error) {
	for _, s := range t.data.sprints {
		if s.ProjectID == projectID && s.Active {
			return cloneSprint(s), nil
		}
	}
	return models.Sprint{}, fmt.Errorf("project %d has no active sprint: %w", projectID, models.ErrNotFound)
}

func (t *tx) ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error) {
	var out []models.Sprint
	for _, s := range t.data.sprints {
		if s.ProjectID == projectID {
			out = append(out, cloneSprint(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tx) CreateSprint(ctx context.Context, s models.Sprint) (models.Sprint, error) {
	if _, err := t.GetProject(ctx, s.ProjectID); err != nil {
		return models.Sprint{}, err
	}
	if err := t.checkActive(s); err != nil {
		return models.Sprint{}, err
	}
	s.ID = t.id()
	s.CreatedAt = t.now()
	s.UpdatedAt = s.CreatedAt
	t.data.sprints[s.ID] = cloneSprint(s)
	return cloneSprint(s), nil
}

func (t *tx) UpdateSprint(ctx context.Context, s models.Sprint) error {
	current, err := t.GetSprint(ctx, s.ID)
	if err != nil {
		return err
	}
	if err := t.checkActive(s); err != nil {
		return err
	}
	s.ProjectID = current.ProjectID
	s.CreatedAt = current.CreatedAt
	s.UpdatedAt = t.now()
	t.data.sprints[s.ID] = cloneSprint(s)
	return nil
}

// checkActive mirrors the partial unique index of the SQL backends.
func (t *tx) checkActive(s models.Sprint) error {
	if !s.Active {
		return nil
	}
	for _, other := range t.data.sprints {
		if other.ID != s.ID && other.ProjectID == s.ProjectID && other.Active {
			return fmt.Errorf("%w: project %d already has active sprint %d", models.ErrConflict, s.ProjectID, other.ID)
		}
	}
	return nil
}

func (t *tx) GetStory(ctx context.Context, id int64) (models.Story, error) {
	s, ok := t.data.stories[id]
	if !ok {
		return models.Story{}, fmt.Errorf("story %d: %w", id, models.ErrNotFound)
	}
	return cloneStory(s), nil
}

func (t *tx) ListStories(ctx context.Context, filter scrum.StoryFilter) ([]models.Story, error) {
	var out []models.Story
	for _, s := range t.data.stories {
		if filter.Match(s) {
			out = append(out, cloneStory(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (t *tx) MaxOrderIndex(ctx context.Context, projectID int64) (int, error) {
	maxIndex := 0
	for _, s := range t.data.stories {
		if s.ProjectID == projectID && s.OrderIndex > maxIndex {
			maxIndex = s.OrderIndex
		}
	}
	return maxIndex, nil
}

func (t *tx) CreateStory(ctx context.Context, s models.Story) (models.Story, error) {
	if _, err := t.GetProject(ctx, s.ProjectID); err != nil {
		return models.Story{}, err
	}
	s.ID = t.id()
	s.CreatedAt = t.now()
	s.UpdatedAt = s.CreatedAt
	t.data.stories[s.ID] = cloneStory(s)
	return cloneStory(s), nil
}

func (t *tx) UpdateStory(ctx context.Context, s models.Story) error {
	current, err := t.GetStory(ctx, s.ID)
	if err != nil {
		return err
	}
	if s.SprintID != nil {
		if _, err := t.GetSprint(ctx, *s.SprintID); err != nil {
			return err
		}
	}
	s.ProjectID = current.ProjectID
	s.ReporterID = current.ReporterID
	s.CreatedAt = current.CreatedAt
	s.UpdatedAt = t.now()
	t.data.stories[s.ID] = cloneStory(s)
	return nil
}

func (t *tx) DeleteStory(ctx context.Context, id int64) error {
	if _, err := t.GetStory(ctx, id); err != nil {
		return err
	}
	delete(t.data.stories, id)
	return nil
}

func cloneSprint(s models.Sprint) models.Sprint {
	if s.Goal != nil {
		g := *s.Goal
		s.Goal = &g
	}
	if s.CompletedAt != nil {
		c := *s.CompletedAt
		s.CompletedAt = &c
	}
	return s
}

func cloneStory(s models.Story) models.Story {
	if s.StoryPoints != nil {
		p := *s.StoryPoints
		s.StoryPoints = &p
	}
	if s.AssigneeID != nil {
		a := *s.AssigneeID
		s.AssigneeID = &a
	}
	if s.SprintID != nil {
		id := *s.SprintID
		s.SprintID = &id
	}
	if s.CompletedAt != nil {
		c := *s.CompletedAt
		s.CompletedAt = &c
	}
	return s
}
