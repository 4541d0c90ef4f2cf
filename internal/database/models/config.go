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

// ErrVersionConflict is returned when a compare-and-swap update finds the
// stored config version no longer matches the one the caller read.
var ErrVersionConflict = errors.New("user config version conflict")

// ConfigModel handles database operations for user interest configurations.
type ConfigModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewConfig creates a new config model instance.
func NewConfig(db *bun.DB, logger *zap.Logger) *ConfigModel {
	return &ConfigModel{
		db:     db,
		logger: logger.Named("db_config"),
	}
}

// Get returns a user's config, creating the default one on first contact.
func (m *ConfigModel) Get(ctx context.Context, userID int64) (*types.UserConfig, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.UserConfig, error) {
		config := &types.UserConfig{ID: userID}

		err := m.db.NewSelect().Model(config).
			WherePK().
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				config = types.NewUserConfig(userID)

				_, err = m.db.NewInsert().
					Model(config).
					On("CONFLICT (id) DO NOTHING").
					Exec(ctx)
				if err != nil {
					return nil, fmt.Errorf("failed to create user config: %w (userID=%d)", err, userID)
				}

				return config, nil
			}

			return nil, fmt.Errorf("failed to get user config: %w (userID=%d)", err, userID)
		}

		return config, nil
	})
}

// UpdateCAS writes a config only if its stored version still equals
// expectedVersion, bumping the version in the same statement. Returns
// ErrVersionConflict when another writer got there first.
func (m *ConfigModel) UpdateCAS(ctx context.Context, tx bun.IDB, config *types.UserConfig, expectedVersion int64) error {
	config.Version = expectedVersion + 1

	res, err := tx.NewUpdate().
		Model(config).
		Column("enabled", "participant_ids", "version").
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update user config: %w (userID=%d)", err, config.ID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w (userID=%d)", err, config.ID)
	}

	if affected == 0 {
		config.Version = expectedVersion
		return fmt.Errorf("%w (userID=%d)", ErrVersionConflict, config.ID)
	}

	m.logger.Debug("Updated user config",
		zap.Int64("userID", config.ID),
		zap.Int64("version", config.Version))

	return nil
}
