package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/frankstormy/pincafe/internal/app"
	"github.com/frankstormy/pincafe/internal/archive"
	"github.com/frankstormy/pincafe/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "data",
	Short:   "Write all collections to a JSON file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			snap, err := a.ExportSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			if err := archive.WriteSnapshotFile(args[0], snap, a.DeviceID()); err != nil {
				return err
			}
			fmt.Printf("%s Exported to %s\n", ui.RenderPass("✓"), args[0])
			fmt.Print(ui.RenderCounts(snap))
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Replace all collections with the contents of a JSON file",
	Long: `Replace this device's products, categories, tables and transactions with
a file written by 'pincafe export' or a backup.

The file must contain all four collections; a partial file is rejected and
nothing changes. Other devices receive the imported data on the next sync.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := archive.ReadSnapshotFile(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.ImportSnapshot(cmd.Context(), &f.Snapshot); err != nil {
				return err
			}
			fmt.Printf("%s Imported %s\n", ui.RenderPass("✓"), args[0])
			if f.DeviceID != "" {
				fmt.Printf("   %s\n", ui.RenderMuted(fmt.Sprintf("exported by %s at %s", f.DeviceID, f.ExportedAt.Local().Format(time.DateTime))))
			}
			fmt.Print(ui.RenderCounts(&f.Snapshot))
			return nil
		})
	},
}

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "data",
	Short:   "Write a timestamped backup now",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Backup.Dir
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			sched, err := archive.NewScheduler(a, archive.SchedulerConfig{
				Dir:      dir,
				Spec:     cfg.Backup.Schedule,
				Keep:     cfg.Backup.Keep,
				DeviceID: a.DeviceID(),
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			path, err := sched.Backup(cmd.Context())
			if err != nil {
				return err
			}
			files, _ := sched.Backups()
			fmt.Printf("%s Backup written to %s\n", ui.RenderPass("✓"), path)
			fmt.Printf("   %d backups in %s\n", len(files), filepath.Clean(dir))
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:     "seed",
	GroupID: "data",
	Short:   "Install the default menu when the catalog is empty",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, _ := cmd.Flags().GetInt("tables")
		return withApp(cmd.Context(), func(a *app.App) error {
			seeded, err := a.POS().SeedDefaults(cmd.Context())
			if err != nil {
				return err
			}
			if seeded {
				fmt.Printf("%s Default menu installed\n", ui.RenderPass("✓"))
			} else {
				fmt.Printf("%s Catalog not empty, menu left alone\n", ui.RenderWarn("⚠"))
			}
			if tables > 0 {
				resized, err := a.POS().ResizeTables(cmd.Context(), tables)
				if err != nil {
					return err
				}
				fmt.Print(ui.RenderTables(resized))
			}
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "data",
	Short:   "Delete all local data except the device id",
	Long: `Delete every product, category, table and transaction on this device,
along with store settings. The device id and sync flags are kept.

With sync enabled the empty state is published to other devices.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force && !confirm(fmt.Sprintf("Delete all data in %s?", cfg.DBPath)) {
			fmt.Println("Aborted")
			return nil
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("%s Local data deleted\n", ui.RenderWarn("⚠"))
			return nil
		})
	},
}

// confirm asks a yes/no question, defaulting to no. A form is shown on a
// terminal; piped input is read as a line.
func confirm(question string) bool {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		ok := false
		err := huh.NewConfirm().
			Title(question).
			Affirmative("Delete").
			Negative("Cancel").
			Value(&ok).
			Run()
		return err == nil && ok
	}

	fmt.Printf("%s [y/N] ", question)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func init() {
	backupCmd.Flags().String("dir", "", "Backup directory (overrides backup.dir)")
	seedCmd.Flags().Int("tables", 0, "Also set the number of tables")
	resetCmd.Flags().BoolP("force", "f", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(exportCmd, importCmd, backupCmd, seedCmd, resetCmd)
}
