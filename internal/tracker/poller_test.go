package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/rallywatch/rallywatch/internal/rttf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testInterval  = 2 * time.Hour
	testRetention = 72 * time.Hour
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

// testPoller bundles a poller with the fakes behind it.
type testPoller struct {
	poller *Poller
	events *fakeEventStore
	subs   *fakeSubscriptionStore
	recs   *fakeRecordStore
	source *fakeSource
	parser *fakeParser
	sink   *fakeSink
}

func newTestPoller(t *testing.T, events ...*types.Event) *testPoller {
	t.Helper()

	tp := &testPoller{
		events: newFakeEventStore(events...),
		subs:   newFakeSubscriptionStore(),
		recs:   newFakeRecordStore(),
		source: newFakeSource(),
		parser: newFakeParser(),
		sink:   &fakeSink{},
	}

	tp.poller = NewPoller(
		tp.events, tp.subs, tp.recs, tp.source, tp.parser, tp.sink,
		testInterval, testRetention, zaptest.NewLogger(t),
	)
	tp.poller.clock = func() time.Time { return testNow }

	return tp
}

func dueEvent(id int64, date time.Time, due time.Time) *types.Event {
	return &types.Event{ID: id, Date: date, Name: "Open Cup", DueAt: &due}
}

func (tp *testPoller) serveDetail(eventID int64, detail *rttf.EventDetail) {
	doc := fmt.Sprintf("doc-%d", eventID)
	tp.source.details[eventID] = doc
	tp.parser.details[doc] = detail
}

func TestProcessBatchNotifiesRegistration(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow.AddDate(0, 0, 1), testNow.Add(-time.Hour)))
	tp.subs.follow(1, 10)
	tp.serveDetail(300, &rttf.EventDetail{
		ID:   300,
		Name: "Open Cup",
		Registered: []rttf.Participant{
			{ID: 10, Name: "Anna Petrova"},
			{ID: 11, Name: "Boris Ivanov"},
		},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, int64(10), changes[0].ParticipantID)
	assert.Equal(t, int64(300), changes[0].EventID)
	assert.Equal(t, types.StatusRegistered, changes[0].Snapshot.Status)

	require.Len(t, tp.sink.deliveries, 1)
	assert.Equal(t, int64(1), tp.sink.deliveries[0].userID)
	assert.Equal(t, "Anna Petrova registered for Open Cup", tp.sink.deliveries[0].text)

	// The full roster is stored, not just the subscribed part.
	event := tp.events.get(300)
	assert.Equal(t, []int64{10, 11}, event.Roster)
	require.NotNil(t, event.DueAt)
	assert.True(t, event.DueAt.Equal(testNow.Add(testInterval)))
}

func TestProcessBatchNotifiesEverySubscriber(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow.AddDate(0, 0, 1), testNow.Add(-time.Hour)))
	tp.subs.follow(1, 10)
	tp.subs.follow(2, 10)
	tp.subs.follow(3, 10)
	tp.serveDetail(300, &rttf.EventDetail{
		ID:         300,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	// One change fans out to every follower, but the record is written once.
	require.Len(t, changes, 1)
	assert.Len(t, tp.recs.records, 1)

	require.Len(t, tp.sink.deliveries, 3)

	recipients := make([]int64, len(tp.sink.deliveries))
	for i, d := range tp.sink.deliveries {
		recipients[i] = d.userID
		assert.Equal(t, "Anna Petrova registered for Open Cup", d.text)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, recipients)
}

func TestProcessBatchUnchangedStateIsSilent(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow.AddDate(0, 0, 1), testNow.Add(-time.Hour)))
	tp.subs.follow(1, 10)
	tp.serveDetail(300, &rttf.EventDetail{
		ID:         300,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	// Make the event due again and poll with identical source state.
	require.NoError(t, tp.events.Reschedule(t.Context(), 300, testNow.Add(-time.Minute)))

	changes, err = tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Len(t, tp.sink.deliveries, 1)
}

func TestProcessBatchStatusProgression(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow.AddDate(0, 0, -1), testNow.Add(-time.Hour)))
	tp.subs.follow(1, 10)

	// Seed the record from a previous poll that saw a registration.
	previous := types.Snapshot{
		Status:          types.StatusRegistered,
		ParticipantID:   10,
		ParticipantName: "Anna Petrova",
		EventID:         300,
		EventName:       "Open Cup",
	}
	serialized, err := previous.Serialize()
	require.NoError(t, err)
	require.NoError(t, tp.recs.Upsert(t.Context(), &types.ParticipantEventRecord{
		ParticipantID: 10,
		EventID:       300,
		Snapshot:      serialized,
	}))

	tp.serveDetail(300, &rttf.EventDetail{
		ID:   300,
		Name: "Open Cup",
		Results: []rttf.ParticipantResult{{
			Participant:  rttf.Participant{ID: 10, Name: "Anna Petrova"},
			RatingBefore: 601.5,
			RatingDelta:  9,
			RatingAfter:  610.5,
			GamesWon:     3,
			GamesLost:    1,
		}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, types.StatusCompleted, changes[0].Snapshot.Status)
	assert.InEpsilon(t, 610.5, changes[0].Snapshot.RatingAfter, 0.001)

	require.Len(t, tp.sink.deliveries, 1)
	assert.Equal(t,
		"Anna Petrova played Open Cup: rating 601.5 → 610.5 (Δ+9), record 3-1",
		tp.sink.deliveries[0].text)
}

func TestProcessBatchStatusPrecedence(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow, testNow.Add(-time.Hour)))
	tp.subs.follow(1, 10)

	// The site keeps players in the sign-up list after they played; the
	// results entry wins.
	tp.serveDetail(300, &rttf.EventDetail{
		ID:         300,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
		Withdrawn:  []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
		Results: []rttf.ParticipantResult{{
			Participant: rttf.Participant{ID: 10, Name: "Anna Petrova"},
			GamesWon:    2,
			GamesLost:   2,
		}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, types.StatusCompleted, changes[0].Snapshot.Status)
	assert.Equal(t, []int64{10}, tp.events.get(300).Roster)
}

func TestProcessBatchIgnoresUnsubscribed(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow.AddDate(0, 0, 1), testNow.Add(-time.Hour)))
	tp.serveDetail(300, &rttf.EventDetail{
		ID:         300,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	assert.Empty(t, changes)
	assert.Empty(t, tp.sink.deliveries)
	assert.Empty(t, tp.recs.records)

	// Roster and schedule are still maintained.
	event := tp.events.get(300)
	assert.Equal(t, []int64{10}, event.Roster)
	require.NotNil(t, event.DueAt)
	assert.True(t, event.DueAt.Equal(testNow.Add(testInterval)))
}

func TestProcessBatchRetiresMissingEvent(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow, testNow.Add(-time.Hour)))

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	assert.Empty(t, changes)
	assert.Nil(t, tp.events.get(300).DueAt)
}

func TestProcessBatchRetiresPastRetention(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow.Add(-testRetention-time.Hour), testNow.Add(-time.Hour)))
	tp.subs.follow(1, 10)
	tp.serveDetail(300, &rttf.EventDetail{
		ID:   300,
		Name: "Open Cup",
		Results: []rttf.ParticipantResult{{
			Participant: rttf.Participant{ID: 10, Name: "Anna Petrova"},
			GamesWon:    1,
			GamesLost:   3,
		}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	// The final state is still recorded and notified before retirement.
	require.Len(t, changes, 1)
	require.Len(t, tp.sink.deliveries, 1)
	assert.Nil(t, tp.events.get(300).DueAt)
}

func TestProcessBatchTransientFetchSkipsEvent(t *testing.T) {
	t.Parallel()

	due := testNow.Add(-time.Hour)
	tp := newTestPoller(t,
		dueEvent(300, testNow, testNow.Add(-2*time.Hour)),
		dueEvent(301, testNow, due),
	)
	tp.subs.follow(1, 10)
	tp.source.fetchErrs[300] = errors.New("connection reset")
	tp.serveDetail(301, &rttf.EventDetail{
		ID:         301,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	// The healthy event still went through.
	require.Len(t, changes, 1)
	assert.Equal(t, int64(301), changes[0].EventID)

	// The failed event keeps its due time for the next run.
	event := tp.events.get(300)
	require.NotNil(t, event.DueAt)
	assert.True(t, event.DueAt.Equal(testNow.Add(-2*time.Hour)))
}

func TestProcessBatchParseFailureIsolated(t *testing.T) {
	t.Parallel()

	brokenDue := testNow.Add(-2 * time.Hour)
	tp := newTestPoller(t,
		dueEvent(300, testNow, brokenDue),
		dueEvent(301, testNow, testNow.Add(-time.Hour)),
	)
	tp.subs.follow(1, 10)

	tp.source.details[300] = "broken"
	tp.parser.errs["broken"] = &rttf.ParseError{Stage: "detail", Reason: "missing title"}
	tp.serveDetail(301, &rttf.EventDetail{
		ID:         301,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)

	var parseErr *rttf.ParseError

	require.ErrorAs(t, err, &parseErr)
	assert.ErrorContains(t, err, "event 300")

	// The rest of the batch was still processed.
	require.Len(t, changes, 1)
	assert.Equal(t, int64(301), changes[0].EventID)

	// The broken event keeps its due time.
	event := tp.events.get(300)
	require.NotNil(t, event.DueAt)
	assert.True(t, event.DueAt.Equal(brokenDue))
}

func TestProcessBatchStorageFailureAborts(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t,
		dueEvent(300, testNow, testNow.Add(-2*time.Hour)),
		dueEvent(301, testNow, testNow.Add(-time.Hour)),
	)
	tp.subs.follow(1, 10)
	tp.serveDetail(300, &rttf.EventDetail{
		ID:         300,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})
	tp.serveDetail(301, &rttf.EventDetail{ID: 301, Name: "Open Cup"})

	storageErr := errors.New("connection refused")
	tp.recs.upsertErr = storageErr

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.ErrorIs(t, err, storageErr)
	assert.Empty(t, changes)

	// The second event was never touched.
	assert.Nil(t, tp.events.get(301).Roster)
}

func TestProcessBatchClaimsOldestFirst(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t,
		dueEvent(300, testNow, testNow.Add(-time.Hour)),
		dueEvent(301, testNow, testNow.Add(-3*time.Hour)),
		dueEvent(302, testNow, testNow.Add(-2*time.Hour)),
	)
	tp.subs.follow(1, 10)

	detail := func(id int64) *rttf.EventDetail {
		return &rttf.EventDetail{
			ID:         id,
			Name:       "Open Cup",
			Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
		}
	}
	tp.serveDetail(300, detail(300))
	tp.serveDetail(301, detail(301))
	tp.serveDetail(302, detail(302))

	changes, err := tp.poller.ProcessBatch(t.Context(), 2)
	require.NoError(t, err)

	require.Len(t, changes, 2)
	assert.Equal(t, int64(301), changes[0].EventID)
	assert.Equal(t, int64(302), changes[1].EventID)

	// The newest due event did not fit the batch.
	event := tp.events.get(300)
	require.NotNil(t, event.DueAt)
	assert.True(t, event.DueAt.Equal(testNow.Add(-time.Hour)))
}

func TestProcessBatchDeliveryFailureStillRecords(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t, dueEvent(300, testNow, testNow.Add(-time.Hour)))
	tp.subs.follow(1, 10)
	tp.sink.err = errors.New("chat not found")
	tp.serveDetail(300, &rttf.EventDetail{
		ID:         300,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Len(t, tp.recs.records, 1)
}

func TestProcessBatchMixedOutcomes(t *testing.T) {
	t.Parallel()

	// One event keeps polling, the other finishes for good in the same run.
	tp := newTestPoller(t,
		dueEvent(300, testNow.AddDate(0, 0, 1), testNow.Add(-2*time.Hour)),
		dueEvent(301, testNow.Add(-testRetention-time.Hour), testNow.Add(-time.Hour)),
	)
	tp.subs.follow(1, 10)
	tp.subs.follow(2, 10)
	tp.subs.follow(3, 11)

	tp.serveDetail(300, &rttf.EventDetail{
		ID:         300,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})
	tp.serveDetail(301, &rttf.EventDetail{
		ID:   301,
		Name: "Closed Cup",
		Results: []rttf.ParticipantResult{{
			Participant: rttf.Participant{ID: 11, Name: "Boris Ivanov"},
			GamesWon:    4,
			GamesLost:   0,
		}},
	})

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)

	require.Len(t, changes, 2)
	assert.Len(t, tp.sink.deliveries, 3)

	recipients := make([]int64, len(tp.sink.deliveries))
	for i, d := range tp.sink.deliveries {
		recipients[i] = d.userID
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, recipients)

	// The upcoming event is rescheduled, the stale one is retired.
	upcoming := tp.events.get(300)
	require.NotNil(t, upcoming.DueAt)
	assert.True(t, upcoming.DueAt.Equal(testNow.Add(testInterval)))
	assert.Nil(t, tp.events.get(301).DueAt)
}

func TestProcessBatchStopsWhenCancelled(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t,
		dueEvent(300, testNow, testNow.Add(-2*time.Hour)),
		dueEvent(301, testNow, testNow.Add(-time.Hour)),
	)
	tp.subs.follow(1, 10)
	tp.serveDetail(300, &rttf.EventDetail{
		ID:         300,
		Name:       "Open Cup",
		Registered: []rttf.Participant{{ID: 10, Name: "Anna Petrova"}},
	})
	tp.serveDetail(301, &rttf.EventDetail{ID: 301, Name: "Open Cup"})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	changes, err := tp.poller.ProcessBatch(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, changes)
	assert.Empty(t, tp.sink.deliveries)

	// Untouched events keep their due times for the next run.
	require.NotNil(t, tp.events.get(300).DueAt)
	assert.True(t, tp.events.get(300).DueAt.Equal(testNow.Add(-2*time.Hour)))
	require.NotNil(t, tp.events.get(301).DueAt)
	assert.True(t, tp.events.get(301).DueAt.Equal(testNow.Add(-time.Hour)))
}

func TestProcessBatchEmpty(t *testing.T) {
	t.Parallel()

	tp := newTestPoller(t)

	changes, err := tp.poller.ProcessBatch(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, changes)
}
