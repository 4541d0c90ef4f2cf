package types

import "slices"

// UserConfig is a user's interest configuration: the set of participants
// they follow and whether notifications are switched on. Version implements
// optimistic concurrency: updates carry the version they were read at and
// only apply if it still matches, so concurrent edits to the same user's
// config cannot silently clobber each other.
type UserConfig struct {
	ID             int64   `bun:",pk"`
	Enabled        bool    `bun:",notnull"`
	ParticipantIDs []int64 `bun:",array"`
	Version        int64   `bun:",notnull"`
}

// NewUserConfig returns the default configuration for a freshly seen user.
func NewUserConfig(userID int64) *UserConfig {
	return &UserConfig{
		ID:             userID,
		Enabled:        false,
		ParticipantIDs: []int64{},
		Version:        1,
	}
}

// Clone returns a deep copy safe to mutate independently.
func (c *UserConfig) Clone() *UserConfig {
	clone := *c
	clone.ParticipantIDs = slices.Clone(c.ParticipantIDs)

	return &clone
}
