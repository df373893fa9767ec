package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/frankstormy/pincafe/internal/pos"
	"github.com/frankstormy/pincafe/internal/schema"
	pcsync "github.com/frankstormy/pincafe/internal/sync"
)

func TestRenderStatus(t *testing.T) {
	last := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	out := RenderStatus(pcsync.Status{
		DeviceID:            "device-a",
		Enabled:             true,
		IsOnline:            false,
		PendingChangesCount: 3,
		LastSyncTime:        &last,
		LastError:           "relay unreachable",
	})
	for _, want := range []string{"device-a", "enabled", "offline", "3", "relay unreachable"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	out = RenderStatus(pcsync.Status{})
	if !strings.Contains(out, "never") || !strings.Contains(out, "disabled") {
		t.Errorf("zero status output:\n%s", out)
	}
}

func TestRenderTables(t *testing.T) {
	out := RenderTables([]schema.Table{
		{ID: 1, Orders: []schema.OrderLine{{Name: "بيتزا", Price: 3500, Quantity: 2}}, Total: 7000, MergedWith: []int64{2}},
		{ID: 2, CustomName: "Terrace"},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "Table 1") || !strings.Contains(lines[0], "7000 د.ع") || !strings.Contains(lines[0], "merged") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Terrace") || !strings.Contains(lines[1], "empty") {
		t.Errorf("line 2 = %q", lines[1])
	}
}

func TestRenderCounts(t *testing.T) {
	snap := schema.EmptySnapshot()
	snap.Products = []schema.Product{{ID: 1}, {ID: 2}}
	out := RenderCounts(snap)
	if !strings.Contains(out, "products") || !strings.Contains(out, "2") {
		t.Errorf("counts output:\n%s", out)
	}
}

func TestRenderReport(t *testing.T) {
	out := RenderReport(&pos.Report{
		From:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		To:          time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC),
		Sales:       2,
		SalesTotal:  6000,
		AverageSale: 3000,
		Net:         7700,
		Items:       []pos.ItemSales{{Name: "برجر", Quantity: 2, Total: 5000}},
	})
	for _, want := range []string{"6000 د.ع", "3000 د.ع", "7700 د.ع", "برجر", "x2"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}
}
