package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

type storyRequest struct {
	Title              string           `json:"title" binding:"required"`
	Description        string           `json:"description"`
	AcceptanceCriteria string           `json:"acceptance_criteria"`
	StoryPoints        *int             `json:"story_points"`
	Priority           *models.Priority `json:"priority"`
	Status             *string          `json:"status"`
	AssigneeID         *int64           `json:"assignee_id"`
	OrderIndex         *int             `json:"order_index"`
}

func (r storyRequest) input(projectID int64) (scrum.StoryInput, error) {
	in := scrum.StoryInput{
		ProjectID:          projectID,
		Title:              r.Title,
		Description:        r.Description,
		AcceptanceCriteria: r.AcceptanceCriteria,
		StoryPoints:        r.StoryPoints,
		Priority:           r.Priority,
		AssigneeID:         r.AssigneeID,
		OrderIndex:         r.OrderIndex,
	}
	if r.Status != nil {
		status, err := models.ParseStoryStatus(*r.Status)
		if err != nil {
			return scrum.StoryInput{}, err
		}
		in.Status = &status
	}
	return in, nil
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// handleListStories fetches every story of a project in backlog order.
func (s *Server) handleListStories(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	stories, err := s.manager.ProjectStories(c.Request.Context(), currentCaps(c), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"stories": stories})
}

// handleBacklog fetches the unscheduled stories of a project.
func (s *Server) handleBacklog(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	stories, err := s.manager.Backlog(c.Request.Context(), currentCaps(c), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"stories": stories})
}

// handleCreateStory adds a story to the project backlog. The caller becomes the reporter.
func (s *Server) handleCreateStory(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondStatus(c, http.StatusBadRequest, err)
		return
	}
	in, err := req.input(projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	story, err := s.manager.CreateStory(c.Request.Context(), currentCaps(c), currentUser(c).ID, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"story": story})
}

func (s *Server) handleGetStory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	story, err := s.manager.GetStory(c.Request.Context(), currentCaps(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"story": story})
}

// handleUpdateStory rewrites the editable fields of a story.
func (s *Server) handleUpdateStory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondStatus(c, http.StatusBadRequest, err)
		return
	}
	in, err := req.input(0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	story, err := s.manager.UpdateStory(c.Request.Context(), currentCaps(c), id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"story": story})
}

// handleSetStoryStatus changes a story's status outside the board.
func (s *Server) handleSetStoryStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondStatus(c, http.StatusBadRequest, err)
		return
	}
	status, err := models.ParseStoryStatus(req.Status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	story, err := s.manager.SetStoryStatus(c.Request.Context(), currentCaps(c), id, status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"story": story})
}

// handleDeleteStory removes a story completely.
func (s *Server) handleDeleteStory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.manager.DeleteStory(c.Request.Context(), currentCaps(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
