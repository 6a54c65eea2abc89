package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shelfwatch/backend/config"
	"github.com/shelfwatch/backend/internal/logger"
)

// Version is the service version reported by the CLI and /health
const Version = "1.0.0"

var (
	// cfgFile holds an explicit configuration file path
	cfgFile string

	rootCmd = &cobra.Command{
		Use:     "shelfwatch",
		Short:   "Catalog resolution engine for retailer monitoring",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() error {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml, ./config/config.yaml or /etc/shelfwatch/config.yaml)",
	)

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(migrateCmd())
}

// loadConfig reads configuration and builds the logger it describes
func loadConfig() (*config.Config, logger.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log.With(logger.String("service", "shelfwatch-backend")), nil
}

func syncLogger(log logger.Logger) {
	// stdout sync fails on some terminals; nothing useful to do about it
	if err := log.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "logger sync: %v\n", err)
	}
}
