package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frankstormy/pincafe/internal/relay"
	"github.com/frankstormy/pincafe/internal/ui"
)

var relayCmd = &cobra.Command{
	Use:     "relay",
	GroupID: "server",
	Short:   "Run the relay that devices share their data through",
	Long: `Run a relay server for one or more restaurants.

Each tenant has one shared document. Devices upload it over HTTP and follow
changes over a websocket:

  PUT /api/documents/{tenant}
  GET /api/documents/{tenant}
  GET /ws/{tenant}

Documents are kept in a bbolt file (relay.db_path) across restarts.

Example usage:
  pincafe relay                  # Listen on relay.addr (default :8787)
  pincafe relay --addr :9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Relay.Addr
		if flag, _ := cmd.Flags().GetString("addr"); flag != "" {
			addr = flag
		}

		server, err := relay.NewServer(&relay.Config{
			Addr:   addr,
			DBPath: cfg.Relay.DBPath,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start relay: %w", err)
		}

		fmt.Printf("%s Relay listening on %s\n", ui.RenderPass("✓"), server.GetAddr())
		fmt.Printf("   Documents: %s\n", cfg.Relay.DBPath)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down relay...")
		return server.Stop()
	},
}

func init() {
	relayCmd.Flags().String("addr", "", "Listen address (overrides relay.addr)")
	rootCmd.AddCommand(relayCmd)
}
