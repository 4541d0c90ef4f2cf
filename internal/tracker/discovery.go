package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Discovery scans a date window of listing pages and registers events not
// seen before. New events get an immediate due time so the next poll run
// picks them up. Events that vanish from listings are deliberately not
// retired here; the poller's not-found path owns that transition.
type Discovery struct {
	events     EventStore
	source     Source
	parser     Parser
	maxWorkers int
	logger     *zap.Logger
	clock      func() time.Time
}

// NewDiscovery creates a discovery instance.
func NewDiscovery(events EventStore, source Source, parser Parser, maxWorkers int, logger *zap.Logger) *Discovery {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	return &Discovery{
		events:     events,
		source:     source,
		parser:     parser,
		maxWorkers: maxWorkers,
		logger:     logger.Named("discovery"),
		clock:      time.Now,
	}
}

// Run fetches the listing for every date in [from, to], parses the pages in
// date order and stores events not yet known. Returns the events added.
func (d *Discovery) Run(ctx context.Context, from, to time.Time) ([]*types.Event, error) {
	dates := datesBetween(from, to)
	if len(dates) == 0 {
		return nil, nil
	}

	// Fetch pages concurrently; results are re-joined by date index so
	// parsing below stays in listing order
	docs := make([]string, len(dates))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(d.maxWorkers)

	for i, date := range dates {
		p.Go(func(ctx context.Context) error {
			doc, err := d.source.FetchListing(ctx, date)
			if err != nil {
				return err
			}

			docs[i] = doc

			d.logger.Debug("Downloaded listing", zap.String("date", date.Format(time.DateOnly)))

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}

	now := d.clock()

	var events []*types.Event

	for i, doc := range docs {
		summaries, err := d.parser.ParseListing(doc)
		if err != nil {
			return nil, fmt.Errorf("%w (date=%s)", err, dates[i].Format(time.DateOnly))
		}

		for _, summary := range summaries {
			due := now

			events = append(events, &types.Event{
				ID:    summary.ID,
				Date:  summary.Date,
				Name:  summary.Name,
				DueAt: &due,
			})
		}
	}

	added, err := d.events.InsertNew(ctx, events)
	if err != nil {
		return nil, err
	}

	for _, event := range added {
		d.logger.Info("Added event",
			zap.Int64("eventID", event.ID),
			zap.String("name", event.Name),
			zap.String("date", event.Date.Format(time.DateOnly)))
	}

	d.logger.Info("Discovery run finished",
		zap.Int("dates", len(dates)),
		zap.Int("seen", len(events)),
		zap.Int("added", len(added)))

	return added, nil
}

// datesBetween lists every day from from to to inclusive.
func datesBetween(from, to time.Time) []time.Time {
	var dates []time.Time
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		dates = append(dates, date)
	}

	return dates
}
