package tracker

import (
	"context"
	"time"

	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/rallywatch/rallywatch/internal/rttf"
)

// EventStore is the slice of event persistence the engine needs.
// *models.EventModel implements it; tests substitute an in-memory fake.
type EventStore interface {
	InsertNew(ctx context.Context, events []*types.Event) ([]*types.Event, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.Event, error)
	UpdateRoster(ctx context.Context, eventID int64, roster []int64) error
	Reschedule(ctx context.Context, eventID int64, next time.Time) error
	Retire(ctx context.Context, eventID int64) error
}

// SubscriptionStore provides the read side of subscriptions used for
// notification routing. *models.SubscriptionModel implements it.
type SubscriptionStore interface {
	SubscribedParticipantIDs(ctx context.Context) ([]int64, error)
	SubscriberIDs(ctx context.Context, participantID int64) ([]int64, error)
}

// RecordStore persists the last notified snapshot per (participant, event)
// pair. *models.RecordModel implements it.
type RecordStore interface {
	Get(ctx context.Context, participantID, eventID int64) (*types.ParticipantEventRecord, error)
	Upsert(ctx context.Context, record *types.ParticipantEventRecord) error
}

// Source fetches raw documents from the external site. *rttf.Client
// implements it. FetchDetail reports a missing event with rttf.ErrNotFound.
type Source interface {
	FetchListing(ctx context.Context, date time.Time) (string, error)
	FetchDetail(ctx context.Context, eventID int64) (string, error)
}

// Parser turns raw documents into structured data. *rttf.Parser implements
// it.
type Parser interface {
	ParseListing(doc string) ([]rttf.EventSummary, error)
	ParseDetail(doc string) (*rttf.EventDetail, error)
}

// Sink delivers one rendered notification to one user. Delivery is
// fire-and-forget: failures are logged by the poller, never retried.
type Sink interface {
	Notify(ctx context.Context, userID int64, text string) error
}

var (
	_ Source = (*rttf.Client)(nil)
	_ Parser = (*rttf.Parser)(nil)
)
