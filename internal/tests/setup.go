// Package tests holds the suites that need a real Postgres. They are skipped
// unless DATABASE_URL is set.
package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/signalix/accounts/internal/db"
)

// RunMigrations applies the embedded goose migrations.
func RunMigrations(database *sql.DB) error {
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// TruncateUsers empties the users table, soft-deleted rows included.
func TruncateUsers(ctx context.Context, database *sql.DB) error {
	if _, err := database.ExecContext(ctx, "TRUNCATE TABLE users"); err != nil {
		return fmt.Errorf("truncate users: %w", err)
	}
	return nil
}
