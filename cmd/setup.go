package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/ytup/internal/shared"
	"github.com/desertthunder/ytup/internal/ui"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	if cmd.Bool("rollback") {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return r.writePlain("%s Rolled back latest migration on %s\n", ui.Success("✓"), r.config.Database.Path)
	}

	r.logger.Info("running database migrations")
	if _, err := r.database(); err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("%s Database ready at %s\n", ui.Success("✓"), r.config.Database.Path)
}

// SetupConfig writes the default configuration to --output or the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		path = cmd.String("config")
	}
	if path == "" {
		return fmt.Errorf("%w: --output", shared.ErrMissingArgument)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("%s Configuration written to %s\n", ui.Success("✓"), path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Download an OAuth client secret and set auth.secret_path\n")
	r.writePlain("2. Run 'ytup setup database' to create the upload history\n")
	r.writePlain("3. Run 'ytup --user <name> auth login' to authorize an account\n")
	return nil
}
