package tracker

import (
	"testing"

	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		snapshot types.Snapshot
		expected string
	}{
		{
			name: "registered",
			snapshot: types.Snapshot{
				Status:          types.StatusRegistered,
				ParticipantName: "Anna Petrova",
				EventName:       "Moscow Open",
			},
			expected: "Anna Petrova registered for Moscow Open",
		},
		{
			name: "withdrawn",
			snapshot: types.Snapshot{
				Status:          types.StatusWithdrawn,
				ParticipantName: "Anna Petrova",
				EventName:       "Moscow Open",
			},
			expected: "Anna Petrova withdrew from Moscow Open",
		},
		{
			name: "completed with gain",
			snapshot: types.Snapshot{
				Status:          types.StatusCompleted,
				ParticipantName: "Anna Petrova",
				EventName:       "Moscow Open",
				RatingBefore:    601.5,
				RatingDelta:     9,
				RatingAfter:     610.5,
				GamesWon:        3,
				GamesLost:       1,
			},
			expected: "Anna Petrova played Moscow Open: rating 601.5 → 610.5 (Δ+9), record 3-1",
		},
		{
			name: "completed with loss",
			snapshot: types.Snapshot{
				Status:          types.StatusCompleted,
				ParticipantName: "Anna Petrova",
				EventName:       "Moscow Open",
				RatingBefore:    605,
				RatingDelta:     -4.5,
				RatingAfter:     600.5,
				GamesWon:        1,
				GamesLost:       3,
			},
			expected: "Anna Petrova played Moscow Open: rating 605 → 600.5 (Δ-4.5), record 1-3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			text, err := RenderMessage(tt.snapshot)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}
}

func TestRenderMessageUnknownStatus(t *testing.T) {
	t.Parallel()

	_, err := RenderMessage(types.Snapshot{Status: "banned"})
	require.Error(t, err)
}
