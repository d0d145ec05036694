package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

type sprintRequest struct {
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name" binding:"required"`
	Goal      *string   `json:"goal"`
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
	StoryIDs  []int64   `json:"story_ids"`
}

func (r sprintRequest) input() scrum.SprintInput {
	return scrum.SprintInput{
		ProjectID: r.ProjectID,
		Name:      r.Name,
		Goal:      r.Goal,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		StoryIDs:  r.StoryIDs,
	}
}

type storyIDsRequest struct {
	StoryIDs []int64 `json:"story_ids"`
}

// handleCreateSprint plans a new sprint, optionally with an initial story set.
func (s *Server) handleCreateSprint(c *gin.Context) {
	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondStatus(c, http.StatusBadRequest, err)
		return
	}
	if req.ProjectID == 0 {
		s.respondStatus(c, http.StatusBadRequest, fmt.Errorf("project_id is required"))
		return
	}
	view, err := s.manager.CreateSprint(c.Request.Context(), currentCaps(c), req.input())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"sprint": view})
}

func (s *Server) handleGetSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := s.manager.GetSprint(c.Request.Context(), currentCaps(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": view})
}

func (s *Server) handleUpdateSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondStatus(c, http.StatusBadRequest, err)
		return
	}
	view, err := s.manager.UpdateSprint(c.Request.Context(), currentCaps(c), id, req.input())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": view})
}

func (s *Server) handleStartSprint(c *gin.Context) {
	s.sprintTransition(c, s.manager.StartSprint)
}

func (s *Server) handleCompleteSprint(c *gin.Context) {
	s.sprintTransition(c, s.manager.CompleteSprint)
}

type transitionFunc func(ctx context.Context, caps scrum.Capabilities, sprintID int64) (models.SprintView, error)

func (s *Server) sprintTransition(c *gin.Context, fn transitionFunc) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := fn(c.Request.Context(), currentCaps(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": view})
}

// handleAssignStories replaces the sprint's story set.
func (s *Server) handleAssignStories(c *gin.Context) {
	s.sprintStories(c, s.manager.AssignStories)
}

// handleAddStories links more stories without unlinking the current ones.
func (s *Server) handleAddStories(c *gin.Context) {
	s.sprintStories(c, s.manager.AddStories)
}

// handleRemoveStories returns stories to the backlog.
func (s *Server) handleRemoveStories(c *gin.Context) {
	s.sprintStories(c, s.manager.RemoveStories)
}

type storiesFunc func(ctx context.Context, caps scrum.Capabilities, sprintID int64, storyIDs []int64) (models.SprintView, error)

func (s *Server) sprintStories(c *gin.Context, fn storiesFunc) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req storyIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondStatus(c, http.StatusBadRequest, err)
		return
	}
	view, err := fn(c.Request.Context(), currentCaps(c), id, req.StoryIDs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": view})
}

// handleListSprints lists a project's sprints; filter=upcoming|completed narrows the list.
func (s *Server) handleListSprints(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx, caps := c.Request.Context(), currentCaps(c)

	var (
		views []models.SprintView
		err   error
	)
	switch filter := c.Query("filter"); filter {
	case "":
		views, err = s.manager.SprintsByProject(ctx, caps, projectID)
	case "upcoming":
		views, err = s.manager.UpcomingSprints(ctx, caps, projectID)
	case "completed":
		views, err = s.manager.CompletedSprints(ctx, caps, projectID)
	default:
		s.respondStatus(c, http.StatusBadRequest, fmt.Errorf("unknown filter %q", filter))
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprints": views})
}

func (s *Server) handleActiveSprint(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	view, err := s.manager.ActiveSprint(c.Request.Context(), currentCaps(c), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": view})
}
