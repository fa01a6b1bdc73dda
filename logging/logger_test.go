package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "toolusage.log")
	logger, _, err := New(Config{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("model trained", zap.Float64("mae", 2.4))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"model trained"`) || !strings.Contains(string(data), `"mae":2.4`) {
		t.Fatalf("unexpected log content: %s", data)
	}
}

func TestLevelCanChangeAtRuntime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, level, err := New(Config{Level: "warn", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hidden")
	if err := SetLevel(level, "debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level.Level() != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %s", level.Level())
	}
	logger.Debug("visible")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "visible") {
		t.Fatalf("unexpected log content: %s", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
