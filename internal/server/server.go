package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
)

const (
	headerUserID    = "X-User-ID"
	headerRequestID = "X-Request-ID"

	ctxRequestID = "request_id"
	ctxUser      = "user"
	ctxCaps      = "capabilities"
)

// Server provides HTTP handlers for the sprint board backend.
type Server struct {
	engine  *gin.Engine
	manager *scrum.Manager
	logger  *slog.Logger
	metrics http.Handler
}

// New constructs the HTTP server with routes and middleware configured.
// metrics may be nil, in which case /metrics is not mounted.
func New(manager *scrum.Manager, logger *slog.Logger, metrics http.Handler) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		engine:  router,
		manager: manager,
		logger:  logger,
		metrics: metrics,
	}
	router.Use(srv.requestID(), srv.requestLog())

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the engine wrapped with OpenTelemetry HTTP instrumentation.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, "sprintboard")
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	s.engine.GET("/api/healthz", s.handleHealth)

	api := s.engine.Group("/api", s.authenticate())
	{
		projects := api.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.GET(":id", s.handleGetProject)
			projects.PUT(":id", s.handleUpdateProject)
			projects.DELETE(":id", s.handleDeleteProject)
			projects.GET(":id/stories", s.handleListStories)
			projects.POST(":id/stories", s.handleCreateStory)
			projects.GET(":id/backlog", s.handleBacklog)
			projects.GET(":id/sprints", s.handleListSprints)
			projects.GET(":id/sprints/active", s.handleActiveSprint)
		}

		sprints := api.Group("/sprints")
		{
			sprints.POST("", s.handleCreateSprint)
			sprints.GET(":id", s.handleGetSprint)
			sprints.PUT(":id", s.handleUpdateSprint)
			sprints.POST(":id/start", s.handleStartSprint)
			sprints.POST(":id/complete", s.handleCompleteSprint)
			sprints.PUT(":id/stories", s.handleAssignStories)
			sprints.POST(":id/stories", s.handleAddStories)
			sprints.DELETE(":id/stories", s.handleRemoveStories)
		}

		kanban := api.Group("/kanban")
		{
			kanban.GET("/sprints/:id", s.handleBoard)
			kanban.GET("/projects/:id/active", s.handleActiveBoard)
			kanban.PUT("/stories/:id/status", s.handleMoveStory)
			kanban.PATCH("/stories/:id/move", s.handleMoveStoryToColumn)
		}

		api.GET("/stories/:id", s.handleGetStory)
		api.PUT("/stories/:id", s.handleUpdateStory)
		api.PATCH("/stories/:id/status", s.handleSetStoryStatus)
		api.DELETE("/stories/:id", s.handleDeleteStory)

		users := api.Group("/users")
		{
			users.GET("", s.handleListUsers)
			users.POST("", s.handleCreateUser)
			users.GET("/me", s.handleCurrentUser)
			users.GET(":id", s.handleGetUser)
			users.GET(":id/stories", s.handleUserStories)
		}
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestID tags every request with an id, reusing the caller's when present.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", c.GetString(ctxRequestID)))
	}
}

// authenticate resolves the X-User-ID header to a user and its capabilities.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerUserID)
		userID, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + headerUserID + " header"})
			return
		}
		user, caps, err := s.manager.Authenticate(c.Request.Context(), userID)
		if errors.Is(err, models.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		if err != nil {
			s.respondError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxUser, user)
		c.Set(ctxCaps, caps)
		c.Next()
	}
}

func currentCaps(c *gin.Context) scrum.Capabilities {
	v, _ := c.Get(ctxCaps)
	caps, _ := v.(scrum.Capabilities)
	return caps
}

func currentUser(c *gin.Context) models.User {
	v, _ := c.Get(ctxUser)
	user, _ := v.(models.User)
	return user
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the error and returns a JSON payload with the mapped status.
func (s *Server) respondError(c *gin.Context, err error) {
	s.respondStatus(c, statusFor(err), err)
}

func (s *Server) respondStatus(c *gin.Context, status int, err error) {
	attrs := []any{
		slog.String("path", c.FullPath()),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("request_id", c.GetString(ctxRequestID)),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	s.logger.Warn("request rejected", attrs...)
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
