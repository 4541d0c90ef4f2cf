package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rallywatch/rallywatch/internal/database/dbretry"
	"github.com/rallywatch/rallywatch/internal/database/models"
	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// maxCASAttempts bounds the retry loop on concurrent config edits.
const maxCASAttempts = 3

// ErrTooManyConflicts is returned when a config update keeps losing the
// compare-and-swap race.
var ErrTooManyConflicts = errors.New("user config update exceeded conflict retries")

// ConfigService owns the read-modify-write cycle for user interest configs.
// Every committed config change is followed, in the same transaction, by the
// subscription reconciliation for that change.
type ConfigService struct {
	db            *bun.DB
	model         *models.ConfigModel
	subscriptions *SubscriptionService
	logger        *zap.Logger
}

// NewConfig creates a new config service.
func NewConfig(
	db *bun.DB,
	model *models.ConfigModel,
	subscriptions *SubscriptionService,
	logger *zap.Logger,
) *ConfigService {
	return &ConfigService{
		db:            db,
		model:         model,
		subscriptions: subscriptions,
		logger:        logger.Named("config_service"),
	}
}

// Get returns a user's config, creating the default one on first contact.
func (s *ConfigService) Get(ctx context.Context, userID int64) (*types.UserConfig, error) {
	return s.model.Get(ctx, userID)
}

// Update applies mutate to a fresh copy of the user's config and commits the
// result together with the subscription delta it implies. The write is
// guarded by the config version; when a concurrent update wins the race, the
// cycle restarts from a fresh read, up to maxCASAttempts times.
func (s *ConfigService) Update(
	ctx context.Context, userID int64, mutate func(*types.UserConfig) error,
) (*types.UserConfig, error) {
	for attempt := range maxCASAttempts {
		old, err := s.model.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		updated := old.Clone()
		if err := mutate(updated); err != nil {
			return nil, fmt.Errorf("failed to mutate user config: %w (userID=%d)", err, userID)
		}

		err = dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
			if err := s.model.UpdateCAS(ctx, tx, updated, old.Version); err != nil {
				return err
			}

			return s.subscriptions.reconcileTx(ctx, tx, old, updated)
		})
		if err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				s.logger.Debug("Config update lost CAS race, retrying",
					zap.Int64("userID", userID),
					zap.Int("attempt", attempt+1))

				continue
			}

			return nil, err
		}

		return updated, nil
	}

	return nil, fmt.Errorf("%w (userID=%d)", ErrTooManyConflicts, userID)
}
