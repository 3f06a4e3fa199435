package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_schema.sql
var createSchemaSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP FUNCTION IF EXISTS check_rate_limit(TEXT);
				DROP TABLE IF EXISTS login_attempts, analytics_events, learning_paths,
					topic_completions, topics, questions, difficulty_states, sessions`)
			return err
		},
	)
}
