package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sprintboard/internal/models"
)

type userRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.manager.ListUsers(c.Request.Context(), currentCaps(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"users": users})
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondStatus(c, http.StatusBadRequest, err)
		return
	}
	user, err := s.manager.CreateUser(c.Request.Context(), currentCaps(c), models.User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      models.Role(req.Role),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"user": user})
}

// handleCurrentUser echoes the authenticated caller and its capabilities.
func (s *Server) handleCurrentUser(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{
		"user":         currentUser(c),
		"capabilities": currentCaps(c).String(),
	})
}

func (s *Server) handleGetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	user, err := s.manager.GetUser(c.Request.Context(), currentCaps(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": user})
}

// handleUserStories lists the stories assigned to a user. Only admins may list other users.
func (s *Server) handleUserStories(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stories, err := s.manager.StoriesByAssignee(c.Request.Context(), currentCaps(c), currentUser(c).ID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"stories": stories})
}
