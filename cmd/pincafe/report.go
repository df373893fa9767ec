package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/frankstormy/pincafe/internal/app"
	"github.com/frankstormy/pincafe/internal/archive"
	"github.com/frankstormy/pincafe/internal/ui"
)

var timeParser = newTimeParser()

func newTimeParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseWhen accepts RFC 3339, a date (2006-01-02) or a phrase like
// "yesterday" or "last monday", relative to now.
func parseWhen(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		return t, nil
	}
	r, err := timeParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q", s)
	}
	return r.Time, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "data",
	Short:   "Summarize sales and register movements",
	Long: `Summarize sales, discounts and cash movements over a time range.

--since and --until accept RFC 3339 times, dates or phrases such as
"yesterday", "last monday" or "3 days ago". The range defaults to today.

Example usage:
  pincafe report
  pincafe report --since "last monday"
  pincafe report --since 2025-01-01 --until 2025-02-01 --csv january.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		from, to := startOfDay(now), now

		if s, _ := cmd.Flags().GetString("since"); s != "" {
			t, err := parseWhen(s, now)
			if err != nil {
				return err
			}
			from = t
		}
		if s, _ := cmd.Flags().GetString("until"); s != "" {
			t, err := parseWhen(s, now)
			if err != nil {
				return err
			}
			to = t
		}
		csvPath, _ := cmd.Flags().GetString("csv")

		return withApp(cmd.Context(), func(a *app.App) error {
			r, err := a.POS().Report(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s Sales Report\n\n", ui.RenderAccent("📊"))
			fmt.Println(ui.RenderReport(r))

			if csvPath == "" {
				return nil
			}
			txns, err := a.POS().Ledger(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			f, err := os.Create(csvPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", csvPath, err)
			}
			if err := errors.Join(archive.WriteLedgerCSV(f, txns), f.Close()); err != nil {
				return err
			}
			fmt.Printf("%s %d transactions written to %s\n", ui.RenderPass("✓"), len(txns), csvPath)
			return nil
		})
	},
}

func init() {
	reportCmd.Flags().String("since", "", "Start of the range (default start of today)")
	reportCmd.Flags().String("until", "", "End of the range (default now)")
	reportCmd.Flags().String("csv", "", "Also write the transactions in range to a CSV file")
	rootCmd.AddCommand(reportCmd)
}
