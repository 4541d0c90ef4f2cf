package rttf

import "time"

// EventSummary is one row of a tournament listing page.
type EventSummary struct {
	ID     int64
	Date   time.Time
	Name   string
	Rating int
}

// Participant is a player reference as it appears on an event page.
type Participant struct {
	ID   int64
	Name string
}

// ParticipantResult is a completed participant's line in an event's results
// table. RatingAfter is carried explicitly rather than derived so rounding
// done by the source is preserved.
type ParticipantResult struct {
	Participant

	RatingBefore float64
	RatingDelta  float64
	RatingAfter  float64
	GamesWon     int
	GamesLost    int
}

// EventDetail is the fully parsed state of one event page: who is signed up,
// who withdrew, and who already played with results.
type EventDetail struct {
	ID         int64
	Name       string
	Registered []Participant
	Withdrawn  []Participant
	Results    []ParticipantResult
}
