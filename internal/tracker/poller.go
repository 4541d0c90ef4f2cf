package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/rallywatch/rallywatch/internal/rttf"
	"github.com/rallywatch/rallywatch/pkg/utils"
	"go.uber.org/zap"
)

// Change records one participant state update that was persisted and
// fanned out to subscribers during a batch.
type Change struct {
	ParticipantID int64
	EventID       int64
	Snapshot      types.Snapshot
}

// Poller claims due events, refreshes their state from the source and
// notifies subscribers about participant changes. Each event commits its
// own effects so one broken event never rolls back its neighbours.
type Poller struct {
	events        EventStore
	subscriptions SubscriptionStore
	records       RecordStore
	source        Source
	parser        Parser
	sink          Sink
	interval      time.Duration
	retention     time.Duration
	logger        *zap.Logger
	clock         func() time.Time
}

// NewPoller creates a poller instance.
func NewPoller(
	events EventStore, subscriptions SubscriptionStore, records RecordStore,
	source Source, parser Parser, sink Sink,
	interval, retention time.Duration, logger *zap.Logger,
) *Poller {
	return &Poller{
		events:        events,
		subscriptions: subscriptions,
		records:       records,
		source:        source,
		parser:        parser,
		sink:          sink,
		interval:      interval,
		retention:     retention,
		logger:        logger.Named("poller"),
		clock:         time.Now,
	}
}

// ProcessBatch claims up to limit due events, oldest due first, and works
// through them one at a time. A fetch failure or a parse failure skips the
// event and the batch carries on; parse failures are additionally collected
// and returned so the caller can report a degraded run. Storage failures
// abort the batch immediately. Returns every change that was persisted
// before the batch ended.
func (p *Poller) ProcessBatch(ctx context.Context, limit int) ([]Change, error) {
	now := p.clock()

	due, err := p.events.ClaimDue(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	if len(due) == 0 {
		p.logger.Debug("No events due")
		return nil, nil
	}

	// One roster-wide subscription set shared by the whole batch. A config
	// change landing mid-batch takes effect on the next run.
	subscribedIDs, err := p.subscriptions.SubscribedParticipantIDs(ctx)
	if err != nil {
		return nil, err
	}

	subscribed := make(map[int64]struct{}, len(subscribedIDs))
	for _, id := range subscribedIDs {
		subscribed[id] = struct{}{}
	}

	var (
		changes   []Change
		parseErrs []error
	)

	for _, event := range due {
		// Events are never cut off mid-flight; cancellation lands on the
		// boundary and the remaining events keep their due times
		if utils.ContextGuardWithLog(ctx, p.logger, "Cancelled, stopping before next event") {
			return changes, ctx.Err()
		}

		eventChanges, err := p.processEvent(ctx, event, now, subscribed)

		var parseErr *rttf.ParseError

		switch {
		case err == nil:
		case errors.As(err, &parseErr):
			p.logger.Error("Failed to parse event, skipping",
				zap.Int64("eventID", event.ID),
				zap.Error(err))

			parseErrs = append(parseErrs, fmt.Errorf("event %d: %w", event.ID, err))

			continue
		default:
			return changes, err
		}

		changes = append(changes, eventChanges...)
	}

	p.logger.Info("Batch finished",
		zap.Int("events", len(due)),
		zap.Int("changes", len(changes)),
		zap.Int("parseFailures", len(parseErrs)))

	return changes, errors.Join(parseErrs...)
}

// processEvent refreshes a single event. The returned error is nil when the
// event was handled, a *rttf.ParseError when the page could not be parsed,
// and a storage error otherwise. Fetch failures are absorbed here: the
// event keeps its due time and gets claimed again on the next run.
func (p *Poller) processEvent(
	ctx context.Context, event *types.Event, now time.Time, subscribed map[int64]struct{},
) ([]Change, error) {
	doc, err := p.source.FetchDetail(ctx, event.ID)
	if err != nil {
		if errors.Is(err, rttf.ErrNotFound) {
			p.logger.Info("Event gone from source, retiring", zap.Int64("eventID", event.ID))
			return nil, p.events.Retire(ctx, event.ID)
		}

		p.logger.Warn("Failed to fetch event, will retry next run",
			zap.Int64("eventID", event.ID),
			zap.Error(err))

		return nil, nil
	}

	detail, err := p.parser.ParseDetail(doc)
	if err != nil {
		return nil, err
	}

	snapshots := buildSnapshots(event, detail)

	roster := make([]int64, len(snapshots))
	for i, snap := range snapshots {
		roster[i] = snap.ParticipantID
	}

	if err := p.events.UpdateRoster(ctx, event.ID, roster); err != nil {
		return nil, err
	}

	var changes []Change

	for _, snap := range snapshots {
		if _, ok := subscribed[snap.ParticipantID]; !ok {
			continue
		}

		changed, err := p.recordChange(ctx, snap, now)
		if err != nil {
			return changes, err
		}

		if !changed {
			continue
		}

		changes = append(changes, Change{
			ParticipantID: snap.ParticipantID,
			EventID:       snap.EventID,
			Snapshot:      snap,
		})

		p.notifySubscribers(ctx, snap)
	}

	if err := p.finishEvent(ctx, event, now); err != nil {
		return changes, err
	}

	return changes, nil
}

// recordChange persists the snapshot when it differs from the last one
// stored for the pair. Reports whether anything changed.
func (p *Poller) recordChange(ctx context.Context, snap types.Snapshot, now time.Time) (bool, error) {
	serialized, err := snap.Serialize()
	if err != nil {
		return false, err
	}

	existing, err := p.records.Get(ctx, snap.ParticipantID, snap.EventID)
	if err != nil {
		return false, err
	}

	if existing != nil && existing.Snapshot == serialized {
		return false, nil
	}

	err = p.records.Upsert(ctx, &types.ParticipantEventRecord{
		ParticipantID: snap.ParticipantID,
		EventID:       snap.EventID,
		Snapshot:      serialized,
		UpdatedAt:     now,
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// notifySubscribers fans the change out to every user following the
// participant. Delivery failures are logged and never retried; the record
// is already stored, so the message will not be sent again either.
func (p *Poller) notifySubscribers(ctx context.Context, snap types.Snapshot) {
	text, err := RenderMessage(snap)
	if err != nil {
		p.logger.Error("Failed to render notification",
			zap.Int64("participantID", snap.ParticipantID),
			zap.Int64("eventID", snap.EventID),
			zap.Error(err))

		return
	}

	userIDs, err := p.subscriptions.SubscriberIDs(ctx, snap.ParticipantID)
	if err != nil {
		p.logger.Error("Failed to load subscribers",
			zap.Int64("participantID", snap.ParticipantID),
			zap.Error(err))

		return
	}

	for _, userID := range userIDs {
		if err := p.sink.Notify(ctx, userID, text); err != nil {
			p.logger.Error("Failed to deliver notification",
				zap.Int64("userID", userID),
				zap.Int64("participantID", snap.ParticipantID),
				zap.Error(err))
		}
	}
}

// finishEvent reschedules the event for the next poll or retires it once
// its date has fallen out of the retention window.
func (p *Poller) finishEvent(ctx context.Context, event *types.Event, now time.Time) error {
	if event.Date.Before(now.Add(-p.retention)) {
		p.logger.Info("Event past retention, retiring",
			zap.Int64("eventID", event.ID),
			zap.String("date", event.Date.Format(time.DateOnly)))

		return p.events.Retire(ctx, event.ID)
	}

	return p.events.Reschedule(ctx, event.ID, now.Add(p.interval))
}

// buildSnapshots flattens an event detail into one snapshot per
// participant. A participant listed in several sections keeps the most
// advanced status: completed beats withdrawn beats registered.
func buildSnapshots(event *types.Event, detail *rttf.EventDetail) []types.Snapshot {
	eventName := detail.Name
	if eventName == "" {
		eventName = event.Name
	}

	var (
		order []int64
		byID  = make(map[int64]types.Snapshot)
	)

	add := func(id int64, snap types.Snapshot) {
		if _, ok := byID[id]; !ok {
			order = append(order, id)
		}

		byID[id] = snap
	}

	for _, participant := range detail.Registered {
		add(participant.ID, types.Snapshot{
			Status:          types.StatusRegistered,
			ParticipantID:   participant.ID,
			ParticipantName: participant.Name,
			EventID:         event.ID,
			EventName:       eventName,
		})
	}

	for _, participant := range detail.Withdrawn {
		add(participant.ID, types.Snapshot{
			Status:          types.StatusWithdrawn,
			ParticipantID:   participant.ID,
			ParticipantName: participant.Name,
			EventID:         event.ID,
			EventName:       eventName,
		})
	}

	for _, result := range detail.Results {
		add(result.ID, types.Snapshot{
			Status:          types.StatusCompleted,
			ParticipantID:   result.ID,
			ParticipantName: result.Name,
			EventID:         event.ID,
			EventName:       eventName,
			RatingBefore:    result.RatingBefore,
			RatingDelta:     result.RatingDelta,
			RatingAfter:     result.RatingAfter,
			GamesWon:        result.GamesWon,
			GamesLost:       result.GamesLost,
		})
	}

	snapshots := make([]types.Snapshot, len(order))
	for i, id := range order {
		snapshots[i] = byID[id]
	}

	return snapshots
}
