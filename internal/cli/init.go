package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-starload/internal/db"
	"github.com/pgEdge/pgedge-starload/internal/feeds"
	"github.com/pgEdge/pgedge-starload/internal/logging"
)

var initDropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the star schema",
	Long: `Apply the embedded schema migrations: the regional sales feed
tables, the six dimension tables with their key sequences, the sales fact
table and the run history table. Feed tables configured beyond the
built-in ones are created with the same layout.

Example:
  pgedge-starload init --connection "postgres://..."
  pgedge-starload init --drop-existing`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"roll back every migration before applying them")
}

func runInit(cmd *cobra.Command, args []string) error {
	if initDropExisting {
		cfg.Init.DropExisting = true
	}

	// Validate configuration
	if err := cfg.ValidateInit(); err != nil {
		return err
	}
	if err := cfg.ValidateSources(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	// Drop existing schema if requested
	if cfg.Init.DropExisting {
		logging.Warn().Msg("Dropping existing schema")
		if err := db.Rollback(pool); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}

	logging.Info().Msg("Applying schema migrations")
	if err := db.Migrate(pool); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := db.EnsureFeedTables(ctx, pool, feeds.Tables()); err != nil {
		return fmt.Errorf("failed to create feed tables: %w", err)
	}

	schemaVersion, _, err := db.SchemaVersion(pool)
	if err != nil {
		return err
	}

	logging.Info().
		Uint("schema_version", schemaVersion).
		Strs("feeds", feeds.Tables()).
		Msg("Database initialization complete")

	return nil
}
