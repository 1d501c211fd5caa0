package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/tally/config"
	"github.com/Ramsey-B/tally/internal/repositories/reference"
	"github.com/Ramsey-B/tally/pkg/database"
	"github.com/Ramsey-B/tally/pkg/seed"
)

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load geography, candidates and poll options from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, zapLogger, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = zapLogger.Sync() }()

			if cfg.StoreDriver == config.StoreDriverMemory {
				return errors.New("seeding the memory store has no effect, set SEED_FILE for serve instead")
			}

			ref, err := seed.LoadFile(file)
			if err != nil {
				return err
			}

			db, err := database.Open(cmd.Context(), cfg.DatabaseURL(), 1, logger)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := seed.Apply(cmd.Context(), db, reference.NewRepository(db, logger), ref); err != nil {
				return err
			}

			logger.WithFields(map[string]any{
				"file":             file,
				"geo_units":        len(ref.GeoUnits),
				"polling_stations": len(ref.PollingStations),
				"candidates":       len(ref.Candidates),
				"poll_options":     len(ref.PollOptions),
			}).Info("Reference data loaded")
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "reference data YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
