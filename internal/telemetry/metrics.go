package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"sprintboard/internal/models"
)

var (
	initMetricsOnce   sync.Once
	operationsCounter metric.Int64Counter
	operationDuration metric.Float64Histogram
	storyMoveCounter  metric.Int64Counter
)

// InitMetrics creates the instruments. Safe to call more than once; only the first call
// has an effect. Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		operationsCounter, err = m.Int64Counter("sprintboard_operations_total",
			metric.WithDescription("Engine operations by name and outcome"))
		if err != nil {
			return
		}
		operationDuration, err = m.Float64Histogram("sprintboard_operation_duration_seconds",
			metric.WithDescription("Engine operation latency in seconds"))
		if err != nil {
			return
		}
		storyMoveCounter, err = m.Int64Counter("sprintboard_story_moves_total",
			metric.WithDescription("Story status transitions made on the board"))
	})
	return err
}

// Outcome classifies an operation error for metric labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrInvalid):
		return "invalid"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

// RecordOperation records one engine operation. A no-op until InitMetrics ran.
func RecordOperation(ctx context.Context, op string, err error, d time.Duration) {
	attrs := metric.WithAttributes(AttrOperation.String(op), AttrOutcome.String(Outcome(err)))
	if operationsCounter != nil {
		operationsCounter.Add(ctx, 1, attrs)
	}
	if operationDuration != nil {
		operationDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordStoryMove records a story changing column.
func RecordStoryMove(ctx context.Context, from, to models.StoryStatus) {
	if storyMoveCounter == nil {
		return
	}
	storyMoveCounter.Add(ctx, 1, metric.WithAttributes(AttrFrom.String(string(from)), AttrTo.String(string(to))))
}
