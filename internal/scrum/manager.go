// Package scrum implements the sprint and story lifecycle engine: which sprint is active
// for a project, how stories move between backlog, sprint and board columns, and how
// board metrics are derived.
package scrum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sprintboard/internal/models"
	"sprintboard/internal/telemetry"
)

// Manager runs engine operations, each inside one store transaction.
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for start, completion and board timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager builds a Manager over store.
func NewManager(store Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) observe(ctx context.Context, op string, start time.Time, err error) {
	telemetry.RecordOperation(ctx, op, err, time.Since(start))
	if err != nil && !isDomainError(err) {
		m.logger.Error("operation failed", slog.String("operation", op), slog.String("error", err.Error()))
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrConflict) ||
		errors.Is(err, models.ErrInvalid) ||
		errors.Is(err, models.ErrForbidden)
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrConflict, fmt.Sprintf(format, args...))
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrInvalid, fmt.Sprintf(format, args...))
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func recordMove(ctx context.Context, from, to models.StoryStatus) {
	if from == to {
		return
	}
	telemetry.RecordStoryMove(ctx, from, to)
}
