package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DBPath != "pincafe.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Sync.Interval != 3*time.Second {
		t.Errorf("Sync.Interval = %v, want 3s", cfg.Sync.Interval)
	}
	if cfg.Sync.Enabled || cfg.Sync.AutoSync {
		t.Error("sync flags should default to off")
	}
	if cfg.Backup.Schedule != "@daily" || cfg.Backup.Keep != 14 {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pincafe.yaml")
	writeConfig(t, path, `
db_path: /var/lib/pincafe/cafe.db
sync:
  interval: 10s
  enabled: true
  relay_url: http://10.0.0.5:8787
  tenant: downtown
backup:
  keep: 3
`)
	t.Setenv("PINCAFE_API_ADDR", "0.0.0.0:9000")
	t.Setenv("PINCAFE_SYNC_AUTO_SYNC", "true")

	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	cfg := l.Config()

	if cfg.DBPath != "/var/lib/pincafe/cafe.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Sync.Interval != 10*time.Second || !cfg.Sync.Enabled || cfg.Sync.Tenant != "downtown" {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if !cfg.Sync.AutoSync {
		t.Error("env override for sync.auto_sync not applied")
	}
	if cfg.API.Addr != "0.0.0.0:9000" {
		t.Errorf("API.Addr = %q, want env override", cfg.API.Addr)
	}
	if cfg.Backup.Keep != 3 || cfg.Backup.Schedule != "@daily" {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
	if l.File() != path {
		t.Errorf("File() = %q", l.File())
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for explicit missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeConfig(t, bad, "sync:\n  interval: -1s\n")
	_, err := Load(bad)
	if err == nil || !strings.Contains(err.Error(), "sync.interval") {
		t.Errorf("Load() = %v, want interval error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty db path", func(c *Config) { c.DBPath = " " }, "db_path"},
		{"relay without tenant", func(c *Config) {
			c.Sync.RelayURL = "http://relay"
			c.Sync.Tenant = ""
		}, "sync.tenant"},
		{"negative keep", func(c *Config) { c.Backup.Keep = -1 }, "backup.keep"},
		{"log mode", func(c *Config) { c.Log.Mode = "verbose" }, "log.mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pincafe.yaml")
	writeConfig(t, path, "sync:\n  interval: 5s\n")

	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	var gotOld, gotNew *Config
	writeConfig(t, path, "sync:\n  interval: 7s\n")
	if err := l.v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() failed: %v", err)
	}
	l.reload(path, func(old, updated *Config) { gotOld, gotNew = old, updated })

	if gotOld == nil || gotOld.Sync.Interval != 5*time.Second {
		t.Errorf("old = %+v", gotOld)
	}
	if gotNew == nil || gotNew.Sync.Interval != 7*time.Second || l.Config() != gotNew {
		t.Errorf("new = %+v", gotNew)
	}

	// An invalid edit keeps the previous configuration.
	writeConfig(t, path, "db_path: ''\n")
	if err := l.v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() failed: %v", err)
	}
	l.reload(path, func(old, updated *Config) { t.Error("callback ran for invalid config") })
	if l.Config() != gotNew {
		t.Error("invalid config replaced the current one")
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pincafe.yaml")
	writeConfig(t, path, "sync:\n  interval: 5s\n")

	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	changed := make(chan *Config, 8)
	l.Watch(func(old, updated *Config) { changed <- updated })

	writeConfig(t, path, "sync:\n  interval: 9s\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Sync.Interval == 9*time.Second {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Sync.Interval = 1500 * time.Millisecond
	cfg.Sync.Tenant = "downtown"

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() failed: %v", err)
	}
	for _, want := range []string{"db_path: pincafe.db", "interval: 1.5s", "tenant: downtown", "@daily"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("yaml output missing %q:\n%s", want, out)
		}
	}

	path := filepath.Join(t.TempDir(), "pincafe.yaml")
	writeConfig(t, path, string(out))
	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := l.Config(); got.Sync.Interval != cfg.Sync.Interval || got.Sync.Tenant != "downtown" {
		t.Errorf("round trip Sync = %+v", got.Sync)
	}
}
