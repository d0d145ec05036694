package render

import (
	"strings"
	"testing"

	"sprintboard/internal/models"
)

func TestBoardRendersColumnsAndMetrics(t *testing.T) {
	points := 5
	b := models.Board{
		SprintName:  "Sprint 7",
		ProjectName: "Apollo",
		Columns: []models.BoardColumn{
			{Status: models.StatusTodo, Stories: []models.Story{{ID: 1, Title: "Login", StoryPoints: &points, Priority: models.PriorityHigh}}},
			{Status: models.StatusInProgress, Stories: []models.Story{}},
			{Status: models.StatusInReview, Stories: []models.Story{}},
			{Status: models.StatusDone, Stories: []models.Story{{ID: 2, Title: "Logout"}}},
		},
		Metrics: models.SprintMetrics{TotalStories: 2, CompletedStories: 1, TotalPoints: 5, CompletionPercentage: 50, DaysRemaining: 3},
	}

	out := Board(b)
	for _, want := range []string{"Apollo / Sprint 7", "TODO (1)", "IN_PROGRESS (0)", "DONE (1)", "#1 Login", "5pt HIGH", "#2 Logout", "no stories", "50.0% complete", "3 days left"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q\n%s", want, out)
		}
	}
}

func TestMetrics(t *testing.T) {
	got := Metrics(models.SprintMetrics{TotalStories: 4, CompletedStories: 1, TotalPoints: 10, CompletedPoints: 2, CompletionPercentage: 25})
	if !strings.Contains(got, "1/4 stories done") || !strings.Contains(got, "2/10 points") {
		t.Fatalf("unexpected metrics line: %q", got)
	}
}
