package models

import (
	"context"
	"fmt"
	"time"

	"github.com/rallywatch/rallywatch/internal/database/dbretry"
	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/zap"
)

// EventModel handles database operations for tracked events.
type EventModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewEvent creates a new event model instance.
func NewEvent(db *bun.DB, logger *zap.Logger) *EventModel {
	return &EventModel{
		db:     db,
		logger: logger.Named("db_event"),
	}
}

// InsertNew stores events that are not yet known, keyed by their external id,
// and returns the ones actually added. Re-running over an overlapping
// discovery window is a no-op for events already stored.
func (m *EventModel) InsertNew(ctx context.Context, events []*types.Event) ([]*types.Event, error) {
	added := make([]*types.Event, 0, len(events))

	for _, event := range events {
		res, err := dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
			res, err := m.db.NewInsert().
				Model(event).
				On("CONFLICT (id) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return 0, err
			}

			return res.RowsAffected()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to insert event: %w (eventID=%d)", err, event.ID)
		}

		if res > 0 {
			added = append(added, event)
		}
	}

	m.logger.Debug("Inserted new events",
		zap.Int("seen", len(events)),
		zap.Int("added", len(added)))

	return added, nil
}

// ClaimDue returns up to limit events whose due time has passed, oldest due
// first. There is no cross-run locking; the poller is a single consumer.
func (m *EventModel) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.Event, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Event, error) {
		var events []*types.Event

		err := m.db.NewSelect().
			Model(&events).
			Where("due_at IS NOT NULL").
			Where("due_at <= ?", now).
			Order("due_at ASC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to claim due events: %w", err)
		}

		return events, nil
	})
}

// UpdateRoster overwrites the stored roster with the freshly observed
// participant set.
func (m *EventModel) UpdateRoster(ctx context.Context, eventID int64, roster []int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Event)(nil)).
			Set("roster = ?", pgdialect.Array(roster)).
			Where("id = ?", eventID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update event roster: %w (eventID=%d)", err, eventID)
		}

		return nil
	})
}

// Reschedule moves a scheduled event's due time forward. Rescheduling a
// terminal event is an invalid transition.
func (m *EventModel) Reschedule(ctx context.Context, eventID int64, next time.Time) error {
	return m.transition(ctx, eventID, &next, "due_at IS NOT NULL")
}

// Retire takes a scheduled event off the poll schedule permanently.
// Retiring an already terminal event is an invalid transition.
func (m *EventModel) Retire(ctx context.Context, eventID int64) error {
	return m.transition(ctx, eventID, nil, "due_at IS NOT NULL")
}

// transition applies a guarded due-time update. The guard clause encodes the
// legal source state; zero affected rows means the event was not in it.
func (m *EventModel) transition(ctx context.Context, eventID int64, due *time.Time, guard string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		res, err := m.db.NewUpdate().
			Model((*types.Event)(nil)).
			Set("due_at = ?", due).
			Where("id = ?", eventID).
			Where(guard).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update event due time: %w (eventID=%d)", err, eventID)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w (eventID=%d)", err, eventID)
		}

		if affected == 0 {
			return fmt.Errorf("%w (eventID=%d)", types.ErrInvalidTransition, eventID)
		}

		return nil
	})
}
