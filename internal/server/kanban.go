package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

type moveRequest struct {
	Status     string `json:"status" binding:"required"`
	AssigneeID *int64 `json:"assignee_id"`
	Comment    string `json:"comment"`
}

// handleBoard returns the kanban board of an active sprint.
func (s *Server) handleBoard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	board, err := s.manager.Board(c.Request.Context(), currentCaps(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": board})
}

// handleActiveBoard returns the board of the project's active sprint.
func (s *Server) handleActiveBoard(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	board, err := s.manager.ActiveBoard(c.Request.Context(), currentCaps(c), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": board})
}

// handleMoveStory moves a story to another column, optionally reassigning it.
func (s *Server) handleMoveStory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondStatus(c, http.StatusBadRequest, err)
		return
	}
	status, err := models.ParseStoryStatus(req.Status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	story, err := s.manager.MoveStory(c.Request.Context(), currentCaps(c), scrum.MoveInput{
		StoryID:    id,
		Status:     status,
		AssigneeID: req.AssigneeID,
		Comment:    req.Comment,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"story": story})
}

// handleMoveStoryToColumn moves a story using the status query parameter.
func (s *Server) handleMoveStoryToColumn(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	status, err := models.ParseStoryStatus(c.Query("status"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	story, err := s.manager.MoveStoryToColumn(c.Request.Context(), currentCaps(c), id, status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"story": story})
}
