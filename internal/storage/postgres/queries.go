package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

const (
	projectColumns = `id, name, description, created_at, updated_at`
	userColumns    = `id, username, email, first_name, last_name, role`
	sprintColumns  = `id, project_id, name, goal, start_date, end_date, active, completed_at, created_at, updated_at`
	storyColumns   = `id, project_id, title, description, acceptance_criteria, story_points, priority, status,
    assignee_id, reporter_id, sprint_id, order_index, created_at, updated_at, completed_at`
)

func (q *queries) GetProject(ctx context.Context, id int64) (models.Project, error) {
	p, err := scanProject(q.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Project{}, notFound("project", id)
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func scanProject(row pgx.Row) (models.Project, error) {
	var p models.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Project{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (q *queries) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := q.db.Query(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	created, err := scanProject(q.db.QueryRow(ctx,
		`INSERT INTO projects(name, description) VALUES($1, $2) RETURNING `+projectColumns, p.Name, p.Description))
	if err != nil {
		return models.Project{}, fmt.Errorf("insert project: %w", mapError(err))
	}
	return created, nil
}

func (q *queries) UpdateProject(ctx context.Context, p models.Project) (models.Project, error) {
	updated, err := scanProject(q.db.QueryRow(ctx,
		`UPDATE projects SET name = $1, description = $2, updated_at = now() WHERE id = $3 RETURNING `+projectColumns,
		p.Name, p.Description, p.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Project{}, notFound("project", p.ID)
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("update project: %w", mapError(err))
	}
	return updated, nil
}

func (q *queries) DeleteProject(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", mapError(err))
	}
	return checkAffected(tag, "project", id)
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &role); err != nil {
		return models.User{}, err
	}
	u.Role = models.Role(role)
	return u, nil
}

func (q *queries) GetUser(ctx context.Context, id int64) (models.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, notFound("user", id)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (q *queries) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (q *queries) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	created, err := scanUser(q.db.QueryRow(ctx,
		`INSERT INTO users(username, email, first_name, last_name, role) VALUES($1, $2, $3, $4, $5) RETURNING `+userColumns,
		u.Username, u.Email, u.FirstName, u.LastName, string(u.Role)))
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", mapError(err))
	}
	return created, nil
}

func scanSprint(row pgx.Row) (models.Sprint, error) {
	var s models.Sprint
	if err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Goal, &s.StartDate, &s.EndDate, &s.Active, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return models.Sprint{}, err
	}
	s.StartDate = s.StartDate.UTC()
	s.EndDate = s.EndDate.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.CompletedAt = utcPtr(s.CompletedAt)
	return s, nil
}

// GetSprint locks the sprint row until the transaction ends.
func (q *queries) GetSprint(ctx context.Context, id int64) (models.Sprint, error) {
	s, err := scanSprint(q.db.QueryRow(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Sprint{}, notFound("sprint", id)
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("get sprint: %w", mapError(err))
	}
	return s, nil
}

func (q *queries) ActiveSprint(ctx context.Context, projectID int64) (models.Sprint, error) {
	s, err := scanSprint(q.db.QueryRow(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id = $1 AND active`, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Sprint{}, fmt.Errorf("project %d has no active sprint: %w", projectID, models.ErrNotFound)
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("active sprint: %w", mapError(err))
	}
	return s, nil
}

func (q *queries) ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error) {
	rows, err := q.db.Query(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id = $1 ORDER BY start_date DESC, id DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()
	var out []models.Sprint
	for rows.Next() {
		s, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *queries) CreateSprint(ctx context.Context, s models.Sprint) (models.Sprint, error) {
	created, err := scanSprint(q.db.QueryRow(ctx,
		`INSERT INTO sprints(project_id, name, goal, start_date, end_date, active, completed_at)
    VALUES($1, $2, $3, $4, $5, $6, $7) RETURNING `+sprintColumns,
		s.ProjectID, s.Name, s.Goal, s.StartDate, s.EndDate, s.Active, s.CompletedAt))
	if err != nil {
		return models.Sprint{}, fmt.Errorf("insert sprint: %w", mapError(err))
	}
	return created, nil
}

func (q *queries) UpdateSprint(ctx context.Context, s models.Sprint) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE sprints SET name = $1, goal = $2, start_date = $3, end_date = $4, active = $5, completed_at = $6,
    updated_at = now() WHERE id = $7`,
		s.Name, s.Goal, s.StartDate, s.EndDate, s.Active, s.CompletedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update sprint: %w", mapError(err))
	}
	return checkAffected(tag, "sprint", s.ID)
}

func scanStory(row pgx.Row) (models.Story, error) {
	var (
		s        models.Story
		priority int
		status   string
	)
	err := row.Scan(&s.ID, &s.ProjectID, &s.Title, &s.Description, &s.AcceptanceCriteria, &s.StoryPoints, &priority, &status,
		&s.AssigneeID, &s.ReporterID, &s.SprintID, &s.OrderIndex, &s.CreatedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		return models.Story{}, err
	}
	s.Priority = models.Priority(priority)
	s.Status = models.StoryStatus(status)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	s.CompletedAt = utcPtr(s.CompletedAt)
	return s, nil
}

func (q *queries) GetStory(ctx context.Context, id int64) (models.Story, error) {
	s, err := scanStory(q.db.QueryRow(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Story{}, notFound("story", id)
	}
	if err != nil {
		return models.Story{}, fmt.Errorf("get story: %w", mapError(err))
	}
	return s, nil
}

func (q *queries) ListStories(ctx context.Context, filter scrum.StoryFilter) ([]models.Story, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.ProjectID != nil {
		where = append(where, "project_id = "+arg(*filter.ProjectID))
	}
	if filter.SprintID != nil {
		where = append(where, "sprint_id = "+arg(*filter.SprintID))
	}
	if filter.Unscheduled {
		where = append(where, "sprint_id IS NULL")
	}
	if filter.AssigneeID != nil {
		where = append(where, "assignee_id = "+arg(*filter.AssigneeID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}

	query := `SELECT ` + storyColumns + ` FROM stories`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY order_index, priority DESC, id`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()
	var out []models.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *queries) MaxOrderIndex(ctx context.Context, projectID int64) (int, error) {
	var maxIndex int
	err := q.db.QueryRow(ctx, `SELECT COALESCE(MAX(order_index), 0) FROM stories WHERE project_id = $1`, projectID).Scan(&maxIndex)
	if err != nil {
		return 0, fmt.Errorf("select order index: %w", err)
	}
	return maxIndex, nil
}

func (q *queries) CreateStory(ctx context.Context, s models.Story) (models.Story, error) {
	created, err := scanStory(q.db.QueryRow(ctx,
		`INSERT INTO stories(project_id, title, description, acceptance_criteria, story_points,
    priority, status, assignee_id, reporter_id, sprint_id, order_index, completed_at)
    VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING `+storyColumns,
		s.ProjectID, s.Title, s.Description, s.AcceptanceCriteria, s.StoryPoints,
		int(s.Priority), string(s.Status), s.AssigneeID, s.ReporterID, s.SprintID, s.OrderIndex, s.CompletedAt))
	if err != nil {
		return models.Story{}, fmt.Errorf("insert story: %w", mapError(err))
	}
	return created, nil
}

func (q *queries) UpdateStory(ctx context.Context, s models.Story) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE stories SET title = $1, description = $2, acceptance_criteria = $3, story_points = $4,
    priority = $5, status = $6, assignee_id = $7, sprint_id = $8, order_index = $9, completed_at = $10,
    updated_at = now() WHERE id = $11`,
		s.Title, s.Description, s.AcceptanceCriteria, s.StoryPoints,
		int(s.Priority), string(s.Status), s.AssigneeID, s.SprintID, s.OrderIndex, s.CompletedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update story: %w", mapError(err))
	}
	return checkAffected(tag, "story", s.ID)
}

func (q *queries) DeleteStory(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete story: %w", mapError(err))
	}
	return checkAffected(tag, "story", id)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
