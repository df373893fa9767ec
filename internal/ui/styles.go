// Package ui renders terminal output for the pincafe CLI.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/frankstormy/pincafe/internal/pos"
	"github.com/frankstormy/pincafe/internal/schema"
	pcsync "github.com/frankstormy/pincafe/internal/sync"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"})
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

const labelWidth = 16

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderBold(s string) string   { return boldStyle.Render(s) }

// RenderMoney formats an amount in Iraqi dinar.
func RenderMoney(amount float64) string {
	return fmt.Sprintf("%.0f د.ع", amount)
}

// RenderField renders a label column followed by value.
func RenderField(label, value string) string {
	if pad := labelWidth - lipgloss.Width(label); pad > 0 {
		label += strings.Repeat(" ", pad)
	} else {
		label += " "
	}
	return mutedStyle.Render(label) + value
}

// RenderStatus renders a sync status block.
func RenderStatus(st pcsync.Status) string {
	var b strings.Builder

	enabled := RenderWarn("disabled")
	if st.Enabled {
		enabled = RenderPass("enabled")
	}
	online := RenderFail("offline")
	if st.IsOnline {
		online = RenderPass("online")
	}
	state := "idle"
	switch {
	case st.IsSyncing:
		state = RenderAccent("syncing")
	case st.Running:
		state = "running"
	}
	last := RenderMuted("never")
	if st.LastSyncTime != nil {
		last = st.LastSyncTime.Local().Format(time.DateTime)
	}

	fmt.Fprintln(&b, RenderField("Device", st.DeviceID))
	fmt.Fprintln(&b, RenderField("Sync", enabled))
	fmt.Fprintln(&b, RenderField("Connection", online))
	fmt.Fprintln(&b, RenderField("State", state))
	fmt.Fprintln(&b, RenderField("Pending", fmt.Sprintf("%d", st.PendingChangesCount)))
	fmt.Fprintln(&b, RenderField("Last sync", last))
	if st.LastError != "" {
		fmt.Fprintln(&b, RenderField("Last error", RenderFail(st.LastError)))
	}
	return b.String()
}

// RenderTables renders one line per table with its order total.
func RenderTables(tables []schema.Table) string {
	var b strings.Builder
	for i := range tables {
		t := &tables[i]
		name := t.DisplayName(i + 1)
		if !t.Occupied() {
			fmt.Fprintln(&b, RenderField(name, RenderMuted("empty")))
			continue
		}
		value := fmt.Sprintf("%s  %d lines", RenderBold(RenderMoney(t.Total)), len(t.Orders))
		if len(t.MergedWith) > 0 {
			value += RenderAccent(fmt.Sprintf("  merged with %d", len(t.MergedWith)))
		}
		fmt.Fprintln(&b, RenderField(name, value))
	}
	return b.String()
}

// RenderCounts renders collection sizes of a snapshot.
func RenderCounts(snap *schema.Snapshot) string {
	var b strings.Builder
	for _, c := range schema.AllCollections {
		fmt.Fprintln(&b, RenderField(string(c), fmt.Sprintf("%d", snap.Count(c))))
	}
	return b.String()
}

// RenderReport renders a sales report.
func RenderReport(r *pos.Report) string {
	var b strings.Builder
	fmt.Fprintln(&b, RenderField("From", r.From.Local().Format(time.DateTime)))
	fmt.Fprintln(&b, RenderField("To", r.To.Local().Format(time.DateTime)))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, RenderField("Sales", fmt.Sprintf("%d", r.Sales)))
	fmt.Fprintln(&b, RenderField("Revenue", RenderBold(RenderMoney(r.SalesTotal))))
	fmt.Fprintln(&b, RenderField("Discounts", RenderMoney(r.Discounts)))
	if r.Sales > 0 {
		fmt.Fprintln(&b, RenderField("Average sale", RenderMoney(r.AverageSale)))
		fmt.Fprintln(&b, RenderField("Median sale", RenderMoney(r.MedianSale)))
		fmt.Fprintln(&b, RenderField("Largest sale", RenderMoney(r.LargestSale)))
	}
	fmt.Fprintln(&b, RenderField("Deposits", RenderPass(RenderMoney(r.Deposits))))
	fmt.Fprintln(&b, RenderField("Withdrawals", RenderWarn(RenderMoney(r.Withdrawals))))
	fmt.Fprintln(&b, RenderField("Net", RenderBold(RenderMoney(r.Net))))

	if len(r.Items) > 0 {
		fmt.Fprintln(&b)
		for _, it := range r.Items {
			fmt.Fprintln(&b, RenderField(it.Name, fmt.Sprintf("x%d  %s", it.Quantity, RenderMoney(it.Total))))
		}
	}
	return b.String()
}
