package main

import (
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/tally/config"
)

type rootOptions struct {
	envFiles []string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tally",
		Short:         "Result sheet collation and aggregation service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "env files to load before reading the environment")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newSeedCommand(opts),
	)
	return cmd
}

// load reads the configuration and builds the process logger
func (o *rootOptions) load() (config.Config, *zap.Logger, ectologger.Logger, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, zapLogger, zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func newZapLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.InitialFields = map[string]any{
		"service":     cfg.AppName,
		"environment": cfg.Environment,
	}
	return zapConfig.Build()
}
