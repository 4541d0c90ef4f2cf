package migrations

import (
	"context"
	"fmt"

	"github.com/rallywatch/rallywatch/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		tables := []struct {
			model any
			name  string
		}{
			{(*types.Event)(nil), "events"},
			{(*types.Subscription)(nil), "subscriptions"},
			{(*types.ParticipantEventRecord)(nil), "participant_event_records"},
			{(*types.UserConfig)(nil), "user_configs"},
		}

		for _, table := range tables {
			_, err := db.NewCreateTable().
				Model(table.model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %s: %w", table.name, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []any{
			(*types.UserConfig)(nil),
			(*types.ParticipantEventRecord)(nil),
			(*types.Subscription)(nil),
			(*types.Event)(nil),
		}

		for _, table := range tables {
			_, err := db.NewDropTable().
				Model(table).
				IfExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table: %w", err)
			}
		}

		return nil
	})
}
