package database

import (
	"github.com/rallywatch/rallywatch/internal/database/service"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	subscription *service.SubscriptionService
	config       *service.ConfigService
}

// NewService creates a new service instance with all services.
func NewService(db *bun.DB, repository *Repository, logger *zap.Logger) *Service {
	subscriptionService := service.NewSubscription(db, logger)

	return &Service{
		subscription: subscriptionService,
		config:       service.NewConfig(db, repository.Config(), subscriptionService, logger),
	}
}

// Subscription returns the subscription reconciliation service.
func (s *Service) Subscription() *service.SubscriptionService {
	return s.subscription
}

// Config returns the user config service.
func (s *Service) Config() *service.ConfigService {
	return s.config
}
