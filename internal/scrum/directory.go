package scrum

import (
	"context"
	"log/slog"
	"strings"

	"sprintboard/internal/models"
)

// Authenticate resolves a caller id to its user and capability set.
func (m *Manager) Authenticate(ctx context.Context, userID int64) (user models.User, caps Capabilities, err error) {
	err = m.store.InTx(ctx, func(tx Tx) error {
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	if err != nil {
		return models.User{}, Capabilities{}, err
	}
	return user, ForRole(user.Role), nil
}

// CreateUser registers a team member.
func (m *Manager) CreateUser(ctx context.Context, caps Capabilities, u models.User) (user models.User, err error) {
	if err = caps.Require(CapManageUsers); err != nil {
		return models.User{}, err
	}
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return models.User{}, invalidf("username must not be empty")
	}
	if u.Role == "" {
		u.Role = models.RoleDeveloper
	}
	if !u.Role.Valid() {
		return models.User{}, invalidf("unknown role %q", u.Role)
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		user, err = tx.CreateUser(ctx, u)
		return err
	})
	if err != nil {
		return models.User{}, err
	}
	m.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	return user, nil
}

// GetUser returns one user.
func (m *Manager) GetUser(ctx context.Context, caps Capabilities, userID int64) (user models.User, err error) {
	if err = caps.Require(CapViewBoard); err != nil {
		return models.User{}, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	return user, err
}

// ListUsers returns every user.
func (m *Manager) ListUsers(ctx context.Context, caps Capabilities) (users []models.User, err error) {
	if err = caps.Require(CapViewBoard); err != nil {
		return nil, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		users, err = tx.ListUsers(ctx)
		return err
	})
	if users == nil {
		users = []models.User{}
	}
	return users, err
}

// CreateProject persists a new project.
func (m *Manager) CreateProject(ctx context.Context, caps Capabilities, name, description string) (project models.Project, err error) {
	if err = caps.Require(CapManageProjects); err != nil {
		return models.Project{}, err
	}
	if strings.TrimSpace(name) == "" {
		return models.Project{}, invalidf("project name must not be empty")
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		project, err = tx.CreateProject(ctx, models.Project{
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(description),
		})
		return err
	})
	if err != nil {
		return models.Project{}, err
	}
	m.logger.Info("project created", slog.Int64("project_id", project.ID))
	return project, nil
}

// GetProject returns one project.
func (m *Manager) GetProject(ctx context.Context, caps Capabilities, projectID int64) (project models.Project, err error) {
	if err = caps.Require(CapViewBoard); err != nil {
		return models.Project{}, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		project, err = tx.GetProject(ctx, projectID)
		return err
	})
	return project, err
}

// ListProjects returns all projects ordered by creation.
func (m *Manager) ListProjects(ctx context.Context, caps Capabilities) (projects []models.Project, err error) {
	if err = caps.Require(CapViewBoard); err != nil {
		return nil, err
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		projects, err = tx.ListProjects(ctx)
		return err
	})
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, err
}

// UpdateProject renames a project or changes its description.
func (m *Manager) UpdateProject(ctx context.Context, caps Capabilities, projectID int64, name, description string) (project models.Project, err error) {
	if err = caps.Require(CapManageProjects); err != nil {
		return models.Project{}, err
	}
	if strings.TrimSpace(name) == "" {
		return models.Project{}, invalidf("project name must not be empty")
	}
	err = m.store.InTx(ctx, func(tx Tx) error {
		project, err = tx.UpdateProject(ctx, models.Project{
			ID:          projectID,
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(description),
		})
		return err
	})
	return project, err
}

// DeleteProject removes a project with its sprints and stories.
func (m *Manager) DeleteProject(ctx context.Context, caps Capabilities, projectID int64) error {
	if err := caps.Require(CapManageProjects); err != nil {
		return err
	}
	err := m.store.InTx(ctx, func(tx Tx) error {
		return tx.DeleteProject(ctx, projectID)
	})
	if err != nil {
		return err
	}
	m.logger.Info("project deleted", slog.Int64("project_id", projectID))
	return nil
}
