package cli

import (
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/threeway/internal/platform/db"
)

// Migrate runs the embedded schema migrations in the given direction.
func Migrate(dsn, direction string, logger *slog.Logger) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("migrate: unknown direction %q, want up or down", direction)
	}
	m, err := db.NewMigrator(dsn, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("migrator close", slog.Any("error", err))
		}
	}()
	if direction == "down" {
		return m.Down()
	}
	return m.Up()
}
