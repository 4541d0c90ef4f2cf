package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/rallywatch/rallywatch/internal/rttf"
)

// fakeEventStore is an in-memory EventStore used by discovery and poller
// tests.
type fakeEventStore struct {
	mu     sync.Mutex
	events map[int64]*types.Event

	rosterErr     error
	transitionErr error
}

func newFakeEventStore(events ...*types.Event) *fakeEventStore {
	store := &fakeEventStore{events: make(map[int64]*types.Event)}
	for _, event := range events {
		clone := *event
		store.events[event.ID] = &clone
	}

	return store
}

func (f *fakeEventStore) InsertNew(_ context.Context, events []*types.Event) ([]*types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var added []*types.Event

	for _, event := range events {
		if _, ok := f.events[event.ID]; ok {
			continue
		}

		clone := *event
		f.events[event.ID] = &clone
		added = append(added, event)
	}

	return added, nil
}

func (f *fakeEventStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]*types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []*types.Event

	for _, event := range f.events {
		if event.DueAt != nil && !event.DueAt.After(now) {
			clone := *event
			due = append(due, &clone)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(*due[j].DueAt) })

	if len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (f *fakeEventStore) UpdateRoster(_ context.Context, eventID int64, roster []int64) error {
	if f.rosterErr != nil {
		return f.rosterErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok {
		return fmt.Errorf("unknown event %d", eventID)
	}

	event.Roster = append([]int64(nil), roster...)

	return nil
}

func (f *fakeEventStore) Reschedule(_ context.Context, eventID int64, next time.Time) error {
	return f.transition(eventID, &next)
}

func (f *fakeEventStore) Retire(_ context.Context, eventID int64) error {
	return f.transition(eventID, nil)
}

func (f *fakeEventStore) transition(eventID int64, due *time.Time) error {
	if f.transitionErr != nil {
		return f.transitionErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok || event.IsTerminal() {
		return fmt.Errorf("%w (eventID=%d)", types.ErrInvalidTransition, eventID)
	}

	event.DueAt = due

	return nil
}

func (f *fakeEventStore) get(eventID int64) *types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	event, ok := f.events[eventID]
	if !ok {
		return nil
	}

	clone := *event

	return &clone
}

// fakeSubscriptionStore maps users to the participants they follow.
type fakeSubscriptionStore struct {
	followers map[int64][]int64 // participant id -> user ids
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{followers: make(map[int64][]int64)}
}

func (f *fakeSubscriptionStore) follow(userID int64, participantIDs ...int64) {
	for _, id := range participantIDs {
		f.followers[id] = append(f.followers[id], userID)
	}
}

func (f *fakeSubscriptionStore) SubscribedParticipantIDs(_ context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.followers))
	for id := range f.followers {
		ids = append(ids, id)
	}

	return ids, nil
}

func (f *fakeSubscriptionStore) SubscriberIDs(_ context.Context, participantID int64) ([]int64, error) {
	return f.followers[participantID], nil
}

// fakeRecordStore keys records by (participant, event).
type fakeRecordStore struct {
	records map[[2]int64]*types.ParticipantEventRecord

	getErr    error
	upsertErr error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[[2]int64]*types.ParticipantEventRecord)}
}

func (f *fakeRecordStore) Get(_ context.Context, participantID, eventID int64) (*types.ParticipantEventRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}

	record, ok := f.records[[2]int64{participantID, eventID}]
	if !ok {
		return nil, nil
	}

	clone := *record

	return &clone, nil
}

func (f *fakeRecordStore) Upsert(_ context.Context, record *types.ParticipantEventRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}

	clone := *record
	f.records[[2]int64{record.ParticipantID, record.EventID}] = &clone

	return nil
}

// fakeSource serves canned documents. A detail entry that is missing acts
// like a deleted event, and fetchErrs simulates network failures.
type fakeSource struct {
	listings  map[string]string // date -> listing doc
	details   map[int64]string  // event id -> detail doc
	fetchErrs map[int64]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		listings:  make(map[string]string),
		details:   make(map[int64]string),
		fetchErrs: make(map[int64]error),
	}
}

func (f *fakeSource) FetchListing(_ context.Context, date time.Time) (string, error) {
	doc, ok := f.listings[date.Format(time.DateOnly)]
	if !ok {
		return "", fmt.Errorf("no listing for %s", date.Format(time.DateOnly))
	}

	return doc, nil
}

func (f *fakeSource) FetchDetail(_ context.Context, eventID int64) (string, error) {
	if err, ok := f.fetchErrs[eventID]; ok {
		return "", err
	}

	doc, ok := f.details[eventID]
	if !ok {
		return "", rttf.ErrNotFound
	}

	return doc, nil
}

// fakeParser resolves documents against canned results, keyed by the raw
// document string.
type fakeParser struct {
	listings map[string][]rttf.EventSummary
	details  map[string]*rttf.EventDetail
	errs     map[string]error
}

func newFakeParser() *fakeParser {
	return &fakeParser{
		listings: make(map[string][]rttf.EventSummary),
		details:  make(map[string]*rttf.EventDetail),
		errs:     make(map[string]error),
	}
}

func (f *fakeParser) ParseListing(doc string) ([]rttf.EventSummary, error) {
	if err, ok := f.errs[doc]; ok {
		return nil, err
	}

	return f.listings[doc], nil
}

func (f *fakeParser) ParseDetail(doc string) (*rttf.EventDetail, error) {
	if err, ok := f.errs[doc]; ok {
		return nil, err
	}

	detail, ok := f.details[doc]
	if !ok {
		return nil, fmt.Errorf("unknown document %q", doc)
	}

	return detail, nil
}

// fakeSink collects delivered notifications.
type fakeSink struct {
	deliveries []delivery
	err        error
}

type delivery struct {
	userID int64
	text   string
}

func (f *fakeSink) Notify(_ context.Context, userID int64, text string) error {
	if f.err != nil {
		return f.err
	}

	f.deliveries = append(f.deliveries, delivery{userID: userID, text: text})

	return nil
}
