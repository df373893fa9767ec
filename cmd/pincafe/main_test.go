package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/frankstormy/pincafe/internal/archive"
	"github.com/frankstormy/pincafe/internal/config"
)

func run(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("pincafe %v failed: %v", args, err)
	}
}

func TestSeedExportImport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cafe.db")
	out := filepath.Join(dir, "export.json")

	run(t, "--db", db, "--log-level", "error", "seed", "--tables", "3")
	run(t, "--db", db, "--log-level", "error", "export", out)

	f, err := archive.ReadSnapshotFile(out)
	if err != nil {
		t.Fatalf("ReadSnapshotFile() failed: %v", err)
	}
	if len(f.Products) != 6 || len(f.Tables) != 3 {
		t.Fatalf("export has %d products and %d tables", len(f.Products), len(f.Tables))
	}
	if f.DeviceID == "" {
		t.Error("export has no device id")
	}

	other := filepath.Join(dir, "other.db")
	run(t, "--db", other, "--log-level", "error", "import", out)
	run(t, "--db", other, "--log-level", "error", "backup", "--dir", filepath.Join(dir, "backups"))

	backups, err := filepath.Glob(filepath.Join(dir, "backups", "pincafe-*.json"))
	if err != nil || len(backups) != 1 {
		t.Fatalf("backups = %v (%v)", backups, err)
	}
	b, err := archive.ReadSnapshotFile(backups[0])
	if err != nil {
		t.Fatalf("ReadSnapshotFile() failed: %v", err)
	}
	if len(b.Products) != 6 {
		t.Errorf("backup has %d products, want 6", len(b.Products))
	}

	run(t, "--db", other, "--log-level", "error", "reset", "--force")
	run(t, "--db", other, "--log-level", "error", "export", out)
	f, err = archive.ReadSnapshotFile(out)
	if err != nil {
		t.Fatalf("ReadSnapshotFile() failed: %v", err)
	}
	if len(f.Products) != 0 {
		t.Errorf("%d products after reset", len(f.Products))
	}
}

func TestSyncCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cafe.db")
	run(t, "--db", db, "--log-level", "error", "sync", "enable")
	run(t, "--db", db, "--log-level", "error", "sync", "autostart", "on")
	run(t, "--db", db, "--log-level", "error", "sync", "status")
	run(t, "--db", db, "--log-level", "error", "sync", "autostart", "off")
	run(t, "--db", db, "--log-level", "error", "sync", "start", "--for", "50ms")
	run(t, "--db", db, "--log-level", "error", "sync", "disable")

	rootCmd.SetArgs([]string{"--db", db, "--log-level", "error", "sync", "start", "--for", "50ms"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("sync start with sync disabled succeeded")
	}
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"off", false, false},
		{"true", true, false},
		{"0", false, false},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		got, err := parseSwitch(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseSwitch(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestRestartOnly(t *testing.T) {
	old := config.Default()
	updated := config.Default()
	updated.Sync.Interval = 10 * time.Second
	if keys := restartOnly(old, updated); len(keys) != 0 {
		t.Errorf("interval change needs restart: %v", keys)
	}

	updated.API.Addr = ":9999"
	updated.Backup.Keep = 1
	keys := restartOnly(old, updated)
	if len(keys) != 2 || keys[0] != "api" || keys[1] != "backup" {
		t.Errorf("restartOnly() = %v", keys)
	}
}

func TestReportAndConfigCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cafe.db")
	out := filepath.Join(dir, "ledger.csv")

	run(t, "--db", db, "--log-level", "error", "seed")
	run(t, "--db", db, "--log-level", "error", "report", "--since", "2020-01-01", "--csv", out)
	if _, err := os.Stat(out); err != nil {
		t.Errorf("ledger csv not written: %v", err)
	}
	run(t, "--db", db, "--log-level", "error", "config")
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2025, 1, 10, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-02T08:00:00Z", time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)},
		{"2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseWhen(tt.in, now)
		if err != nil || !got.Equal(tt.want) {
			t.Errorf("parseWhen(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}

	got, err := parseWhen("yesterday", now)
	if err != nil {
		t.Fatalf("parseWhen(yesterday) failed: %v", err)
	}
	if y, m, d := got.Date(); y != 2025 || m != time.January || d != 9 {
		t.Errorf("yesterday = %v", got)
	}

	if _, err := parseWhen("qqq zzz", now); err == nil {
		t.Error("expected error for unparseable phrase")
	}
}

func TestStartOfDay(t *testing.T) {
	got := startOfDay(time.Date(2025, 1, 10, 18, 30, 5, 9, time.UTC))
	if !got.Equal(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("startOfDay() = %v", got)
	}
}
