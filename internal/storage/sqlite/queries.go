package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

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

type scanner interface {
	Scan(dest ...any) error
}

// GetProject fetches a single project by id.
func (q *queries) GetProject(ctx context.Context, id int64) (models.Project, error) {
	var p models.Project
	err := q.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, notFound("project", id)
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by id.
func (q *queries) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateProject inserts a project and returns it.
func (q *queries) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO projects(name, description) VALUES(?, ?)`, p.Name, p.Description)
	if err != nil {
		return models.Project{}, fmt.Errorf("insert project: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Project{}, fmt.Errorf("project id: %w", err)
	}
	return q.GetProject(ctx, id)
}

// UpdateProject renames a project and rewrites its description.
func (q *queries) UpdateProject(ctx context.Context, p models.Project) (models.Project, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE projects SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		p.Name, p.Description, p.ID)
	if err != nil {
		return models.Project{}, fmt.Errorf("update project: %w", mapConstraint(err))
	}
	if err := checkAffected(res, "project", p.ID); err != nil {
		return models.Project{}, err
	}
	return q.GetProject(ctx, p.ID)
}

// DeleteProject removes a project along with its sprints and stories.
func (q *queries) DeleteProject(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return checkAffected(res, "project", id)
}

// GetUser fetches a single user by id.
func (q *queries) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	var role string
	err := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, notFound("user", id)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

// ListUsers returns all users ordered by id.
func (q *queries) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = models.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a user and returns it.
func (q *queries) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO users(username, email, first_name, last_name, role) VALUES(?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.FirstName, u.LastName, string(u.Role))
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("user id: %w", err)
	}
	return q.GetUser(ctx, id)
}

func scanSprint(row scanner) (models.Sprint, error) {
	var (
		s         models.Sprint
		goal      sql.NullString
		completed sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &goal, &s.StartDate, &s.EndDate, &s.Active, &completed, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return models.Sprint{}, err
	}
	if goal.Valid {
		g := goal.String
		s.Goal = &g
	}
	if completed.Valid {
		c := completed.Time.UTC()
		s.CompletedAt = &c
	}
	s.StartDate = s.StartDate.UTC()
	s.EndDate = s.EndDate.UTC()
	return s, nil
}

// GetSprint fetches a sprint. The immediate transaction already holds the write lock.
func (q *queries) GetSprint(ctx context.Context, id int64) (models.Sprint, error) {
	s, err := scanSprint(q.db.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sprint{}, notFound("sprint", id)
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("get sprint: %w", err)
	}
	return s, nil
}

// ActiveSprint returns the active sprint of a project.
func (q *queries) ActiveSprint(ctx context.Context, projectID int64) (models.Sprint, error) {
	s, err := scanSprint(q.db.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id = ? AND active = 1`, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sprint{}, fmt.Errorf("project %d has no active sprint: %w", projectID, models.ErrNotFound)
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("active sprint: %w", err)
	}
	return s, nil
}

// ListSprints returns the sprints of a project, newest start date first.
func (q *queries) ListSprints(ctx context.Context, projectID int64) ([]models.Sprint, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id = ? ORDER BY start_date DESC, id DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	var sprints []models.Sprint
	for rows.Next() {
		s, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sprints = append(sprints, s)
	}
	return sprints, rows.Err()
}

// CreateSprint inserts a sprint and returns it.
func (q *queries) CreateSprint(ctx context.Context, s models.Sprint) (models.Sprint, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO sprints(project_id, name, goal, start_date, end_date, active, completed_at)
        VALUES(?, ?, ?, ?, ?, ?, ?)`,
		s.ProjectID, s.Name, nullString(s.Goal), s.StartDate.UTC(), s.EndDate.UTC(), s.Active, nullTime(s.CompletedAt))
	if err != nil {
		return models.Sprint{}, fmt.Errorf("insert sprint: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Sprint{}, fmt.Errorf("sprint id: %w", err)
	}
	return q.GetSprint(ctx, id)
}

// UpdateSprint rewrites the mutable sprint columns.
func (q *queries) UpdateSprint(ctx context.Context, s models.Sprint) error {
	res, err := q.db.ExecContext(ctx, `UPDATE sprints SET name = ?, goal = ?, start_date = ?, end_date = ?, active = ?, completed_at = ?,
        updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		s.Name, nullString(s.Goal), s.StartDate.UTC(), s.EndDate.UTC(), s.Active, nullTime(s.CompletedAt), s.ID)
	if err != nil {
		return fmt.Errorf("update sprint: %w", mapConstraint(err))
	}
	return checkAffected(res, "sprint", s.ID)
}

func scanStory(row scanner) (models.Story, error) {
	var (
		s         models.Story
		points    sql.NullInt64
		priority  int
		status    string
		assignee  sql.NullInt64
		sprint    sql.NullInt64
		completed sql.NullTime
	)
	err := row.Scan(&s.ID, &s.ProjectID, &s.Title, &s.Description, &s.AcceptanceCriteria, &points, &priority, &status,
		&assignee, &s.ReporterID, &sprint, &s.OrderIndex, &s.CreatedAt, &s.UpdatedAt, &completed)
	if err != nil {
		return models.Story{}, err
	}
	s.Priority = models.Priority(priority)
	s.Status = models.StoryStatus(status)
	if points.Valid {
		p := int(points.Int64)
		s.StoryPoints = &p
	}
	if assignee.Valid {
		a := assignee.Int64
		s.AssigneeID = &a
	}
	if sprint.Valid {
		id := sprint.Int64
		s.SprintID = &id
	}
	if completed.Valid {
		c := completed.Time.UTC()
		s.CompletedAt = &c
	}
	return s, nil
}

// GetStory retrieves a story by id.
func (q *queries) GetStory(ctx context.Context, id int64) (models.Story, error) {
	s, err := scanStory(q.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Story{}, notFound("story", id)
	}
	if err != nil {
		return models.Story{}, fmt.Errorf("get story: %w", err)
	}
	return s, nil
}

// ListStories returns the stories matching filter in backlog order.
func (q *queries) ListStories(ctx context.Context, filter scrum.StoryFilter) ([]models.Story, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProjectID != nil {
		where = append(where, "project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.SprintID != nil {
		where = append(where, "sprint_id = ?")
		args = append(args, *filter.SprintID)
	}
	if filter.Unscheduled {
		where = append(where, "sprint_id IS NULL")
	}
	if filter.AssigneeID != nil {
		where = append(where, "assignee_id = ?")
		args = append(args, *filter.AssigneeID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + storyColumns + ` FROM stories`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY order_index, priority DESC, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	var stories []models.Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// MaxOrderIndex returns the highest order index used by a project.
func (q *queries) MaxOrderIndex(ctx context.Context, projectID int64) (int, error) {
	var position sql.NullInt64
	err := q.db.QueryRowContext(ctx, `SELECT MAX(order_index) FROM stories WHERE project_id = ?`, projectID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select order index: %w", err)
	}
	if position.Valid {
		return int(position.Int64), nil
	}
	return 0, nil
}

// CreateStory inserts a story and returns it.
func (q *queries) CreateStory(ctx context.Context, s models.Story) (models.Story, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO stories(project_id, title, description, acceptance_criteria, story_points,
        priority, status, assignee_id, reporter_id, sprint_id, order_index, completed_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ProjectID, s.Title, s.Description, s.AcceptanceCriteria, nullInt(s.StoryPoints),
		int(s.Priority), string(s.Status), nullInt64(s.AssigneeID), s.ReporterID, nullInt64(s.SprintID), s.OrderIndex, nullTime(s.CompletedAt))
	if err != nil {
		return models.Story{}, fmt.Errorf("insert story: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Story{}, fmt.Errorf("story id: %w", err)
	}
	return q.GetStory(ctx, id)
}

// UpdateStory rewrites the mutable story columns. Project, reporter and creation time are fixed.
func (q *queries) UpdateStory(ctx context.Context, s models.Story) error {
	res, err := q.db.ExecContext(ctx, `UPDATE stories SET title = ?, description = ?, acceptance_criteria = ?, story_points = ?,
        priority = ?, status = ?, assignee_id = ?, sprint_id = ?, order_index = ?, completed_at = ?,
        updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		s.Title, s.Description, s.AcceptanceCriteria, nullInt(s.StoryPoints),
		int(s.Priority), string(s.Status), nullInt64(s.AssigneeID), nullInt64(s.SprintID), s.OrderIndex, nullTime(s.CompletedAt), s.ID)
	if err != nil {
		return fmt.Errorf("update story: %w", mapConstraint(err))
	}
	return checkAffected(res, "story", s.ID)
}

// DeleteStory removes a story by id.
func (q *queries) DeleteStory(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	return checkAffected(res, "story", id)
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
