package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/api"
	"github.com/frankstormy/pincafe/internal/app"
	"github.com/frankstormy/pincafe/internal/archive"
	"github.com/frankstormy/pincafe/internal/config"
	"github.com/frankstormy/pincafe/internal/metrics"
	"github.com/frankstormy/pincafe/internal/ui"
)

const metricsNamespace = "pincafe"

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Run the device: HTTP API, sync and scheduled backups",
	Long: `Run this device until interrupted.

The device serves its HTTP API, publishes its data to the relay when sync is
enabled and auto-start is on, and writes scheduled backups when configured.
On first start the default menu is installed.

Changes to the config file's sync.interval and sync.enabled take effect
without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.API.Addr = addr
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		reg := metrics.NewRegistry()
		a, err := openApp(ctx, metrics.NewSync(reg, metricsNamespace))
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
		}()

		if _, err := a.POS().SeedDefaults(ctx); err != nil {
			return fmt.Errorf("failed to install default menu: %w", err)
		}
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sync: %w", err)
		}

		if cfg.Backup.Enabled {
			sched, err := archive.NewScheduler(a, archive.SchedulerConfig{
				Dir:      cfg.Backup.Dir,
				Spec:     cfg.Backup.Schedule,
				Keep:     cfg.Backup.Keep,
				DeviceID: a.DeviceID(),
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()
		}

		apiConfig := &api.Config{Addr: cfg.API.Addr, Logger: logger}
		if cfg.API.Metrics {
			apiConfig.Registry = reg
			apiConfig.HTTPMetrics = metrics.NewHTTP(reg, metricsNamespace)
		}
		server := api.NewServer(a, apiConfig)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}

		loader.Watch(func(old, updated *config.Config) {
			applyConfig(ctx, a, old, updated)
		})

		fmt.Printf("%s Device %s serving on http://%s\n", ui.RenderPass("✓"), a.DeviceID(), server.GetAddr())
		if cfg.Sync.RelayURL != "" {
			fmt.Printf("   Relay: %s (tenant %s)\n", cfg.Sync.RelayURL, cfg.Sync.Tenant)
		} else {
			fmt.Printf("   %s\n", ui.RenderMuted("No relay configured, sync stays on this device"))
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Stop(shutdownCtx)
	},
}

// applyConfig applies the settings that can change while serving.
func applyConfig(ctx context.Context, a *app.App, old, updated *config.Config) {
	if updated.Sync.Interval != old.Sync.Interval {
		a.Coordinator().SetInterval(updated.Sync.Interval)
		logger.Info("sync interval changed", zap.Duration("interval", updated.Sync.Interval))
	}
	if updated.Sync.Enabled != old.Sync.Enabled {
		if err := a.SetSyncEnabled(ctx, updated.Sync.Enabled); err != nil {
			logger.Warn("failed to apply sync.enabled", zap.Error(err))
		}
	}
	for _, key := range restartOnly(old, updated) {
		logger.Warn("config change needs a restart", zap.String("key", key))
	}
}

func restartOnly(old, updated *config.Config) []string {
	var keys []string
	if old.DBPath != updated.DBPath {
		keys = append(keys, "db_path")
	}
	if old.API != updated.API {
		keys = append(keys, "api")
	}
	if old.Sync.RelayURL != updated.Sync.RelayURL || old.Sync.Tenant != updated.Sync.Tenant {
		keys = append(keys, "sync.relay_url")
	}
	if old.Backup != updated.Backup {
		keys = append(keys, "backup")
	}
	return keys
}

func init() {
	serveCmd.Flags().String("addr", "", "API listen address (overrides api.addr)")
	rootCmd.AddCommand(serveCmd)
}
