package notesync

import (
	"context"
	"fmt"
)

// Migrate creates or updates the schema of the configured stores.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.logger.Info("Running database migrations")
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.logger.Info("Migrations completed successfully")
	return nil
}
