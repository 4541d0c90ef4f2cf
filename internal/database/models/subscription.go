package models

import (
	"context"
	"fmt"

	"github.com/rallywatch/rallywatch/internal/database/dbretry"
	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SubscriptionModel handles database operations for user subscriptions.
// Rows are normally written through the subscription reconciliation service;
// this model covers the read side shared by the poller.
type SubscriptionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewSubscription creates a new subscription model instance.
func NewSubscription(db *bun.DB, logger *zap.Logger) *SubscriptionModel {
	return &SubscriptionModel{
		db:     db,
		logger: logger.Named("db_subscription"),
	}
}

// SubscribedParticipantIDs returns the distinct set of participant ids any
// user is currently subscribed to. The poller fetches this once per batch.
func (m *SubscriptionModel) SubscribedParticipantIDs(ctx context.Context) ([]int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]int64, error) {
		var participantIDs []int64

		err := m.db.NewSelect().
			Model((*types.Subscription)(nil)).
			ColumnExpr("DISTINCT participant_id").
			Scan(ctx, &participantIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to get subscribed participants: %w", err)
		}

		return participantIDs, nil
	})
}

// SubscriberIDs returns the users subscribed to a participant.
func (m *SubscriptionModel) SubscriberIDs(ctx context.Context, participantID int64) ([]int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]int64, error) {
		var userIDs []int64

		err := m.db.NewSelect().
			Model((*types.Subscription)(nil)).
			Column("user_id").
			Where("participant_id = ?", participantID).
			Scan(ctx, &userIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to get subscribers: %w (participantID=%d)", err, participantID)
		}

		return userIDs, nil
	})
}
