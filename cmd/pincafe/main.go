// Command pincafe runs a point-of-sale device, the relay that devices share
// their data through, and local maintenance tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/app"
	"github.com/frankstormy/pincafe/internal/config"
	"github.com/frankstormy/pincafe/internal/logging"
	"github.com/frankstormy/pincafe/internal/metrics"
	"github.com/frankstormy/pincafe/internal/transport"
)

var (
	configFile string
	dbPath     string
	logLevel   string

	loader *config.Loader
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pincafe",
	Short: "Point-of-sale device with peer sync",
	Long: `pincafe keeps a restaurant's products, tables and cash register in a
local SQLite database and shares them between devices through a relay.

Configuration is read from pincafe.yaml (or --config), a .env file and
PINCAFE_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		loader, err = config.Load(configFile)
		if err != nil {
			return err
		}
		// Flag overrides stay out of the loader's copy so reloads compare
		// file contents only.
		c := *loader.Config()
		cfg = &c
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		logger, err = logging.New(cfg.Log)
		if err != nil {
			return err
		}
		loader.SetLogger(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./pincafe.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database file (overrides db_path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Servers:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newTransport returns a relay client when a relay is configured and an
// in-process mailbox otherwise.
func newTransport() (transport.Transport, error) {
	if cfg.Sync.RelayURL == "" {
		return transport.NewMailbox().Client(), nil
	}
	return transport.NewWSClient(transport.WSConfig{
		BaseURL: cfg.Sync.RelayURL,
		Tenant:  cfg.Sync.Tenant,
		Logger:  logger,
	})
}

// openApp opens the device database. syncMetrics may be nil.
func openApp(ctx context.Context, syncMetrics *metrics.Sync) (*app.App, error) {
	tr, err := newTransport()
	if err != nil {
		return nil, err
	}
	a, err := app.Open(ctx, &app.Options{
		DBPath:      cfg.DBPath,
		Transport:   tr,
		DeviceID:    cfg.DeviceID,
		Interval:    cfg.Sync.Interval,
		SyncEnabled: cfg.Sync.Enabled,
		AutoSync:    cfg.Sync.AutoSync,
		Logger:      logger,
		Metrics:     syncMetrics,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open %s: %w", cfg.DBPath, err), tr.Close())
	}
	return a, nil
}

// withApp opens the device, runs fn and closes it.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	return errors.Join(fn(a), a.Close())
}
