package service

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

// SubscriptionService reconciles persisted subscription rows with a user's
// interest configuration. A reconciliation applies only the delta between
// the old and new config and runs as a single transaction, including the
// wake-up of dormant events that already carry a newly followed participant.
type SubscriptionService struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewSubscription creates a new subscription service.
func NewSubscription(db *bun.DB, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		db:     db,
		logger: logger.Named("subscription_service"),
	}
}

// Reconcile diffs the old and new config and applies the delta in one
// transaction.
func (s *SubscriptionService) Reconcile(ctx context.Context, old, updated *types.UserConfig) error {
	return dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		return s.reconcileTx(ctx, tx, old, updated)
	})
}

// reconcileTx applies a reconciliation inside an existing transaction so a
// config save and its subscription delta commit atomically.
func (s *SubscriptionService) reconcileTx(ctx context.Context, tx bun.IDB, old, updated *types.UserConfig) error {
	added, removed := DiffInterest(old, updated)
	if len(added) == 0 && len(removed) == 0 && !dropsAllSubscriptions(old, updated) {
		return nil
	}

	if len(added) > 0 {
		subscriptions := make([]*types.Subscription, len(added))
		for i, participantID := range added {
			subscriptions[i] = &types.Subscription{
				UserID:        updated.ID,
				ParticipantID: participantID,
			}
		}

		_, err := tx.NewInsert().
			Model(&subscriptions).
			On("CONFLICT (user_id, participant_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert subscriptions: %w (userID=%d)", err, updated.ID)
		}

		if err := s.wakeDormantEvents(ctx, tx, added); err != nil {
			return err
		}
	}

	switch {
	case dropsAllSubscriptions(old, updated):
		// Disabling clears every row for the user, not just the ones the
		// interest list accounts for, so drifted rows cannot outlive it
		_, err := tx.NewDelete().
			Model((*types.Subscription)(nil)).
			Where("user_id = ?", updated.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear subscriptions: %w (userID=%d)", err, updated.ID)
		}
	case len(removed) > 0:
		_, err := tx.NewDelete().
			Model((*types.Subscription)(nil)).
			Where("user_id = ?", updated.ID).
			Where("participant_id IN (?)", bun.In(removed)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete subscriptions: %w (userID=%d)", err, updated.ID)
		}
	}

	s.logger.Info("Reconciled subscriptions",
		zap.Int64("userID", updated.ID),
		zap.Int64s("added", added),
		zap.Int64s("removed", removed))

	return nil
}

// wakeDormantEvents reschedules terminal events whose stored roster contains
// a newly followed participant, so the new subscriber is caught up on the
// next poll run instead of missing an event that stopped being polled.
func (s *SubscriptionService) wakeDormantEvents(ctx context.Context, tx bun.IDB, participantIDs []int64) error {
	res, err := tx.NewUpdate().
		Model((*types.Event)(nil)).
		Set("due_at = ?", time.Now()).
		Where("due_at IS NULL").
		Where("roster && ?", pgdialect.Array(participantIDs)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to wake dormant events: %w", err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		s.logger.Info("Woke dormant events for new subscriptions",
			zap.Int64("count", affected),
			zap.Int64s("participantIDs", participantIDs))
	}

	return nil
}

// DiffInterest computes the subscription delta for a config transition,
// following the enabled-flag transition table:
//
//	off -> on:  every followed participant is added
//	on -> off:  every followed participant is removed
//	on -> on:   set difference in both directions
//	off -> off: no change
func DiffInterest(old, updated *types.UserConfig) (added, removed []int64) {
	switch {
	case !old.Enabled && updated.Enabled:
		return uniqueIDs(updated.ParticipantIDs), nil
	case old.Enabled && !updated.Enabled:
		return nil, uniqueIDs(old.ParticipantIDs)
	case old.Enabled && updated.Enabled:
		return subtractIDs(updated.ParticipantIDs, old.ParticipantIDs),
			subtractIDs(old.ParticipantIDs, updated.ParticipantIDs)
	default:
		return nil, nil
	}
}

// dropsAllSubscriptions reports whether a config transition disables
// tracking. The disable delete is keyed on user_id alone so every stored
// row goes, whatever the old interest list says.
func dropsAllSubscriptions(old, updated *types.UserConfig) bool {
	return old.Enabled && !updated.Enabled
}

// subtractIDs returns the ids present in a but not in b, deduplicated.
func subtractIDs(a, b []int64) []int64 {
	exclude := make(map[int64]struct{}, len(b))
	for _, id := range b {
		exclude[id] = struct{}{}
	}

	var result []int64

	seen := make(map[int64]struct{}, len(a))

	for _, id := range a {
		if _, ok := exclude[id]; ok {
			continue
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		result = append(result, id)
	}

	return result
}

func uniqueIDs(ids []int64) []int64 {
	return subtractIDs(ids, nil)
}
