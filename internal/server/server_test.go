package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"sprintboard/internal/models"
	"sprintboard/internal/scrum"
	"sprintboard/internal/storage/memory"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	mgr     *scrum.Manager
	admin   int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := scrum.NewManager(memory.New(logger), logger)
	admin, err := mgr.CreateUser(context.Background(), scrum.SystemCapabilities(), models.User{Username: "root", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	srv := New(mgr, logger, nil)
	return &testServer{t: t, handler: srv.Handler(), mgr: mgr, admin: admin.ID}
}

func (ts *testServer) do(method, path string, userID int64, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(headerUserID, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// expect performs a request and decodes the response after checking its status.
func (ts *testServer) expect(want int, method, path string, userID int64, body any, out any) {
	ts.t.Helper()
	rec := ts.do(method, path, userID, body)
	if rec.Code != want {
		ts.t.Fatalf("%s %s: expected %d, got %d: %s", method, path, want, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			ts.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/healthz", 0, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected %s header", headerRequestID)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(headerRequestID); got != "abc-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "abc", http.StatusUnauthorized},
		{"unknown user", "9999", http.StatusUnauthorized},
		{"known user", strconv.FormatInt(ts.admin, 10), http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			if tc.header != "" {
				req.Header.Set(headerUserID, tc.header)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(http.MethodGet, "/nope", 0, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSprintFlow(t *testing.T) {
	ts := newTestServer(t)

	var userResp struct {
		User models.User `json:"user"`
	}
	ts.expect(http.StatusCreated, http.MethodPost, "/api/users", ts.admin,
		map[string]any{"username": "dev", "role": "DEVELOPER"}, &userResp)
	dev := userResp.User.ID

	var projectResp struct {
		Project models.Project `json:"project"`
	}
	ts.expect(http.StatusCreated, http.MethodPost, "/api/projects", ts.admin,
		map[string]any{"name": "Apollo"}, &projectResp)
	projectID := projectResp.Project.ID
	base := "/api/projects/" + strconv.FormatInt(projectID, 10)

	var storyResp struct {
		Story models.Story `json:"story"`
	}
	ts.expect(http.StatusCreated, http.MethodPost, base+"/stories", dev,
		map[string]any{"title": "Login", "story_points": 3, "priority": "HIGH"}, &storyResp)
	login := storyResp.Story
	if login.ReporterID != dev || login.Priority != models.PriorityHigh || login.Status != models.StatusBacklog {
		t.Fatalf("unexpected story: %+v", login)
	}
	ts.expect(http.StatusCreated, http.MethodPost, base+"/stories", dev,
		map[string]any{"title": "Logout", "story_points": 5}, &storyResp)
	logout := storyResp.Story

	ts.expect(http.StatusBadRequest, http.MethodPost, base+"/stories", dev,
		map[string]any{"title": "x", "priority": "URGENT"}, nil)

	now := time.Now().UTC()
	sprintBody := map[string]any{
		"project_id": projectID,
		"name":       "Sprint 1",
		"start_date": now,
		"end_date":   now.Add(7 * 24 * time.Hour),
		"story_ids":  []int64{login.ID, logout.ID},
	}
	ts.expect(http.StatusForbidden, http.MethodPost, "/api/sprints", dev, sprintBody, nil)

	var sprintResp struct {
		Sprint models.SprintView `json:"sprint"`
	}
	ts.expect(http.StatusCreated, http.MethodPost, "/api/sprints", ts.admin, sprintBody, &sprintResp)
	sprintPath := "/api/sprints/" + strconv.FormatInt(sprintResp.Sprint.ID, 10)
	if sprintResp.Sprint.State != models.SprintPlanned || len(sprintResp.Sprint.Stories) != 2 {
		t.Fatalf("unexpected sprint: %+v", sprintResp.Sprint)
	}

	boardPath := "/api/kanban/sprints/" + strconv.FormatInt(sprintResp.Sprint.ID, 10)
	ts.expect(http.StatusConflict, http.MethodGet, boardPath, dev, nil, nil)

	ts.expect(http.StatusOK, http.MethodPost, sprintPath+"/start", ts.admin, nil, &sprintResp)
	if sprintResp.Sprint.State != models.SprintActive {
		t.Fatalf("expected active sprint, got %s", sprintResp.Sprint.State)
	}
	ts.expect(http.StatusConflict, http.MethodPost, sprintPath+"/start", ts.admin, nil, nil)

	movePath := "/api/kanban/stories/" + strconv.FormatInt(logout.ID, 10) + "/status"
	ts.expect(http.StatusOK, http.MethodPut, movePath, dev,
		map[string]any{"status": "done", "assignee_id": dev}, &storyResp)
	if storyResp.Story.Status != models.StatusDone || storyResp.Story.CompletedAt == nil {
		t.Fatalf("unexpected moved story: %+v", storyResp.Story)
	}
	ts.expect(http.StatusBadRequest, http.MethodPut, movePath, dev, map[string]any{"status": "BLOCKED"}, nil)
	ts.expect(http.StatusOK, http.MethodPatch,
		"/api/kanban/stories/"+strconv.FormatInt(login.ID, 10)+"/move?status=IN_PROGRESS", dev, nil, nil)

	var boardResp struct {
		Board models.Board `json:"board"`
	}
	ts.expect(http.StatusOK, http.MethodGet, "/api/kanban/projects/"+strconv.FormatInt(projectID, 10)+"/active", dev, nil, &boardResp)
	m := boardResp.Board.Metrics
	if m.TotalStories != 2 || m.CompletedStories != 1 || m.InProgressStories != 1 || m.TotalPoints != 8 || m.CompletedPoints != 5 {
		t.Fatalf("unexpected metrics: %+v", m)
	}

	ts.expect(http.StatusConflict, http.MethodDelete, "/api/stories/"+strconv.FormatInt(login.ID, 10), ts.admin, nil, nil)

	ts.expect(http.StatusOK, http.MethodPost, sprintPath+"/complete", ts.admin, nil, &sprintResp)
	if sprintResp.Sprint.State != models.SprintCompleted {
		t.Fatalf("expected completed sprint, got %s", sprintResp.Sprint.State)
	}

	var backlogResp struct {
		Stories []models.Story `json:"stories"`
	}
	ts.expect(http.StatusOK, http.MethodGet, base+"/backlog", dev, nil, &backlogResp)
	if len(backlogResp.Stories) != 1 || backlogResp.Stories[0].ID != login.ID {
		t.Fatalf("expected unfinished story back in backlog, got %+v", backlogResp.Stories)
	}

	var listResp struct {
		Sprints []models.SprintView `json:"sprints"`
	}
	ts.expect(http.StatusOK, http.MethodGet, base+"/sprints?filter=completed", dev, nil, &listResp)
	if len(listResp.Sprints) != 1 {
		t.Fatalf("expected one completed sprint, got %d", len(listResp.Sprints))
	}
	ts.expect(http.StatusBadRequest, http.MethodGet, base+"/sprints?filter=someday", dev, nil, nil)
	ts.expect(http.StatusNotFound, http.MethodGet, base+"/sprints/active", dev, nil, nil)
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad id", http.MethodGet, "/api/sprints/abc", nil, http.StatusBadRequest},
		{"missing sprint", http.MethodGet, "/api/sprints/42", nil, http.StatusNotFound},
		{"missing story", http.MethodGet, "/api/stories/42", nil, http.StatusNotFound},
		{"missing project board", http.MethodGet, "/api/kanban/projects/42/active", nil, http.StatusNotFound},
		{"sprint without project", http.MethodPost, "/api/sprints", map[string]any{
			"name": "S", "start_date": time.Now(), "end_date": time.Now().Add(time.Hour),
		}, http.StatusBadRequest},
		{"project without name", http.MethodPost, "/api/projects", map[string]any{"description": "x"}, http.StatusBadRequest},
		{"invalid role", http.MethodPost, "/api/users", map[string]any{"username": "u", "role": "CEO"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(tc.method, tc.path, ts.admin, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
