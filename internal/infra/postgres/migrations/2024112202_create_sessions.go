package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_create_sessions.sql
var createSessionsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return execStatements(ctx, db, createSessionsSQL)
		},
		func(ctx context.Context, db *bun.DB) error {
			return execStatements(ctx, db, `
DROP TABLE IF EXISTS session_answers;
--bun:split
DROP TABLE IF EXISTS session_participants;
--bun:split
DROP TABLE IF EXISTS quiz_sessions;
`)
		},
	)
}
