package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frankstormy/pincafe/internal/app"
	pcsync "github.com/frankstormy/pincafe/internal/sync"
	"github.com/frankstormy/pincafe/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Inspect and control sync with other devices",
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status of this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("📊"))
			fmt.Print(ui.RenderStatus(a.GetSyncStatus()))
			auto := ui.RenderWarn("off")
			if a.AutoSyncEnabled() {
				auto = ui.RenderPass("on")
			}
			fmt.Println(ui.RenderField("Auto start", auto))
			fmt.Println(ui.RenderField("Interval", a.Coordinator().Interval().String()))
			fmt.Println()
			return nil
		})
	},
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Publish this device's data immediately",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			fmt.Printf("%s Publishing...\n", ui.RenderAccent("🔄"))
			if err := a.ForceSyncNow(cmd.Context()); err != nil {
				return err
			}
			st := a.GetSyncStatus()
			fmt.Printf("%s Published at clock %d\n", ui.RenderPass("✓"), st.LastSyncClock)
			return nil
		})
	},
}

var syncStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run sync in the foreground until interrupted",
	Long: `Start syncing this device now, whether or not auto-start is on, and keep
running until Ctrl+C. Sync must be enabled.

Use 'pincafe serve' to run sync together with the HTTP API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if d, _ := cmd.Flags().GetDuration("for"); d > 0 {
			var stop context.CancelFunc
			ctx, stop = context.WithTimeout(ctx, d)
			defer stop()
		}

		return withApp(ctx, func(a *app.App) error {
			if err := a.StartSync(ctx); err != nil {
				if errors.Is(err, pcsync.ErrSyncDisabled) {
					return fmt.Errorf("%w: run 'pincafe sync enable' first", err)
				}
				return err
			}
			fmt.Printf("%s Syncing every %s\n", ui.RenderPass("✓"), a.Coordinator().Interval())
			fmt.Println("\nPress Ctrl+C to stop...")

			<-ctx.Done()
			a.StopSync()
			fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("📊"))
			fmt.Print(ui.RenderStatus(a.GetSyncStatus()))
			return nil
		})
	},
}

var syncEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn sync on for this device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.SetSyncEnabled(cmd.Context(), true); err != nil {
				return err
			}
			fmt.Printf("%s Sync enabled\n", ui.RenderPass("✓"))
			return nil
		})
	},
}

var syncDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn sync off for this device; local data is kept",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.SetSyncEnabled(cmd.Context(), false); err != nil {
				return err
			}
			fmt.Printf("%s Sync disabled\n", ui.RenderWarn("⚠"))
			return nil
		})
	},
}

var syncAutostartCmd = &cobra.Command{
	Use:   "autostart <on|off>",
	Short: "Choose whether sync starts when the device starts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseSwitch(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.SetAutoSyncEnabled(cmd.Context(), on); err != nil {
				return err
			}
			fmt.Printf("%s Auto start %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}

func init() {
	syncStartCmd.Flags().Duration("for", 0, "Stop after this long (default run until interrupted)")
	syncCmd.AddCommand(syncStatusCmd, syncNowCmd, syncStartCmd, syncEnableCmd, syncDisableCmd, syncAutostartCmd)
	rootCmd.AddCommand(syncCmd)
}
