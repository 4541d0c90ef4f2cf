package types

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// ParticipantStatus is a participant's observed state within one event.
type ParticipantStatus string

const (
	StatusRegistered ParticipantStatus = "registered"
	StatusWithdrawn  ParticipantStatus = "withdrawn"
	StatusCompleted  ParticipantStatus = "completed"
)

// Snapshot captures one participant's status within one event at a point in
// time. Completion metrics are only set when Status is StatusCompleted.
// Serialization is deterministic (fixed field order), so two snapshots are
// interchangeable with string equality on the serialized form.
type Snapshot struct {
	Status          ParticipantStatus `json:"status"`
	ParticipantID   int64             `json:"participant_id"`
	ParticipantName string            `json:"participant_name"`
	EventID         int64             `json:"event_id"`
	EventName       string            `json:"event_name"`
	RatingBefore    float64           `json:"rating_before,omitempty"`
	RatingDelta     float64           `json:"rating_delta,omitempty"`
	RatingAfter     float64           `json:"rating_after,omitempty"`
	GamesWon        int               `json:"games_won,omitempty"`
	GamesLost       int               `json:"games_lost,omitempty"`
}

// Serialize returns the canonical string form stored in
// participant_event_records and compared against it.
func (s *Snapshot) Serialize() (string, error) {
	data, err := sonic.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	return string(data), nil
}

// DeserializeSnapshot parses a stored snapshot value.
func DeserializeSnapshot(data string) (*Snapshot, error) {
	var snapshot Snapshot
	if err := sonic.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	return &snapshot, nil
}
