package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/frankstormy/pincafe/internal/config"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
	}{
		{"development", config.LogConfig{Mode: "development", Level: "debug"}, false},
		{"production", config.LogConfig{Mode: "production", Level: "warn"}, false},
		{"default level", config.LogConfig{Mode: "production"}, false},
		{"bad level", config.LogConfig{Mode: "development", Level: "loud"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if logger != nil {
				_ = logger.Sync()
			}
		})
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pincafe.log")
	logger, err := New(config.LogConfig{
		Mode:       "production",
		Level:      "info",
		FileEnable: true,
		Filename:   path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("checkout recorded")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"checkout recorded"`) {
		t.Errorf("log file = %s", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry written at info level")
	}
}
