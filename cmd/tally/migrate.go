package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/tally/pkg/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var (
		down    bool
		version uint
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, zapLogger, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = zapLogger.Sync() }()

			db, err := database.Open(cmd.Context(), cfg.DatabaseURL(), 1, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if !cmd.Flags().Changed("version") {
				version = cfg.DatabaseMigrationVersion
			}

			return database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             version,
				Force:               cfg.DatabaseMigrationForce,
				Down:                down,
			}).Migrate(db.SQL(), cfg.DatabaseName)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")
	cmd.Flags().UintVar(&version, "version", 0, "migrate to this version instead of the latest")
	return cmd
}
