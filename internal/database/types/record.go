package types

import "time"

// ParticipantEventRecord stores the last notified status snapshot for one
// participant within one event. The presence of a record with a given
// serialized snapshot means a notification for exactly that value has
// already been emitted, so records are only written when the snapshot
// differs from what is stored.
type ParticipantEventRecord struct {
	ParticipantID int64     `bun:",pk"`
	EventID       int64     `bun:",pk"`
	Snapshot      string    `bun:",notnull"`
	UpdatedAt     time.Time `bun:",notnull"`
}
