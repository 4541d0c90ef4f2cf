package types

// Subscription links a user to a participant they want updates about.
// The pair is the primary key; subscription rows are the sole source of
// "who to notify" and always mirror the most recently committed UserConfig.
type Subscription struct {
	UserID        int64 `bun:",pk"`
	ParticipantID int64 `bun:",pk"`
}
