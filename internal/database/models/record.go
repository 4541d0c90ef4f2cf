package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rallywatch/rallywatch/internal/database/dbretry"
	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RecordModel handles database operations for participant event records.
type RecordModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewRecord creates a new record model instance.
func NewRecord(db *bun.DB, logger *zap.Logger) *RecordModel {
	return &RecordModel{
		db:     db,
		logger: logger.Named("db_record"),
	}
}

// Get returns the stored record for a (participant, event) pair, or nil when
// no notification has been emitted for the pair yet.
func (m *RecordModel) Get(ctx context.Context, participantID, eventID int64) (*types.ParticipantEventRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.ParticipantEventRecord, error) {
		record := &types.ParticipantEventRecord{
			ParticipantID: participantID,
			EventID:       eventID,
		}

		err := m.db.NewSelect().Model(record).
			WherePK().
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get record: %w (participantID=%d, eventID=%d)",
				err, participantID, eventID)
		}

		return record, nil
	})
}

// Upsert writes a record, overwriting any previous snapshot for the pair.
// The guard clause keeps an identical snapshot from being rewritten even if
// the caller's compare raced with another writer.
func (m *RecordModel) Upsert(ctx context.Context, record *types.ParticipantEventRecord) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(record).
			On("CONFLICT (participant_id, event_id) DO UPDATE").
			Set("snapshot = EXCLUDED.snapshot").
			Set("updated_at = EXCLUDED.updated_at").
			Where("participant_event_record.snapshot IS DISTINCT FROM EXCLUDED.snapshot").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert record: %w (participantID=%d, eventID=%d)",
				err, record.ParticipantID, record.EventID)
		}

		m.logger.Debug("Upserted participant event record",
			zap.Int64("participantID", record.ParticipantID),
			zap.Int64("eventID", record.EventID))

		return nil
	})
}
