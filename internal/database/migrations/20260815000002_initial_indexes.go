package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Due-event claim scans: scheduled events ordered by due time
			CREATE INDEX IF NOT EXISTS idx_events_due
			ON events (due_at ASC)
			WHERE due_at IS NOT NULL;

			-- Dormant wake-up lookups by roster membership
			CREATE INDEX IF NOT EXISTS idx_events_dormant_roster
			ON events USING GIN (roster)
			WHERE due_at IS NULL;

			-- Notification fan-out by participant
			CREATE INDEX IF NOT EXISTS idx_subscriptions_participant
			ON subscriptions (participant_id);
		`).Exec(ctx)

		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_subscriptions_participant;
			DROP INDEX IF EXISTS idx_events_dormant_roster;
			DROP INDEX IF EXISTS idx_events_due;
		`).Exec(ctx)

		return err
	})
}
