package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sprintboard/internal/models"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("sprint 1: %w", models.ErrNotFound), "not_found"},
		{fmt.Errorf("%w: already active", models.ErrConflict), "conflict"},
		{models.ErrInvalid, "invalid"},
		{models.ErrForbidden, "forbidden"},
		{io.EOF, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Outcome(tt.err); got != tt.want {
				t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestRecordBeforeInitIsNoop(t *testing.T) {
	RecordOperation(context.Background(), "start_sprint", nil, time.Millisecond)
	RecordStoryMove(context.Background(), models.StatusTodo, models.StatusDone)
}

func TestMetricsHandlerExposesOperations(t *testing.T) {
	ctx := context.Background()
	handler, err := InitMeterProvider(ctx, "telemetry-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordOperation(ctx, "start_sprint", nil, 5*time.Millisecond)
	RecordStoryMove(ctx, models.StatusTodo, models.StatusInProgress)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sprintboard_operations") {
		t.Errorf("metrics output missing sprintboard_operations:\n%s", rec.Body.String())
	}
}
