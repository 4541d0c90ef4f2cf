package database

import (
	"github.com/rallywatch/rallywatch/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	event        *models.EventModel
	subscription *models.SubscriptionModel
	record       *models.RecordModel
	config       *models.ConfigModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		event:        models.NewEvent(db, logger),
		subscription: models.NewSubscription(db, logger),
		record:       models.NewRecord(db, logger),
		config:       models.NewConfig(db, logger),
	}
}

// Event returns the event model repository.
func (r *Repository) Event() *models.EventModel {
	return r.event
}

// Subscription returns the subscription model repository.
func (r *Repository) Subscription() *models.SubscriptionModel {
	return r.subscription
}

// Record returns the participant event record model repository.
func (r *Repository) Record() *models.RecordModel {
	return r.record
}

// Config returns the user config model repository.
func (r *Repository) Config() *models.ConfigModel {
	return r.config
}
