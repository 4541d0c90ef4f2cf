package tracker

import (
	"fmt"

	"github.com/rallywatch/rallywatch/internal/database/types"
)

// RenderMessage turns a snapshot into the notification text sent to
// subscribers.
func RenderMessage(snap types.Snapshot) (string, error) {
	switch snap.Status {
	case types.StatusRegistered:
		return fmt.Sprintf("%s registered for %s", snap.ParticipantName, snap.EventName), nil
	case types.StatusWithdrawn:
		return fmt.Sprintf("%s withdrew from %s", snap.ParticipantName, snap.EventName), nil
	case types.StatusCompleted:
		return fmt.Sprintf("%s played %s: rating %s → %s (%s), record %d-%d",
			snap.ParticipantName, snap.EventName,
			formatRating(snap.RatingBefore), formatRating(snap.RatingAfter),
			formatDelta(snap.RatingDelta),
			snap.GamesWon, snap.GamesLost), nil
	default:
		return "", fmt.Errorf("unknown participant status %q", snap.Status)
	}
}

// formatRating prints a rating without trailing zeros, matching how the
// source site displays them.
func formatRating(value float64) string {
	return trimZeros(fmt.Sprintf("%.1f", value))
}

// formatDelta prints a signed rating change with the delta marker.
func formatDelta(value float64) string {
	if value >= 0 {
		return "Δ+" + trimZeros(fmt.Sprintf("%.1f", value))
	}

	return "Δ" + trimZeros(fmt.Sprintf("%.1f", value))
}

func trimZeros(value string) string {
	if len(value) > 2 && value[len(value)-2:] == ".0" {
		return value[:len(value)-2]
	}

	return value
}
