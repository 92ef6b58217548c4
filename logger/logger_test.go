package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := Init(logPath, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Info("hello from the test")
	Warnf("count is %d", 7)
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "[INFO]") || !strings.Contains(content, "hello from the test") {
		t.Errorf("log file missing info line:\n%s", content)
	}
	if !strings.Contains(content, "[WARN]") || !strings.Contains(content, "count is 7") {
		t.Errorf("log file missing warn line:\n%s", content)
	}
}

func TestInitRequiresDestination(t *testing.T) {
	if err := Init("", false); err == nil {
		t.Error("Init accepted a configuration with no output destination")
	}
}

func TestSetLevelFilters(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := Init(logPath, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	SetLevel(WARN)
	defer SetLevel(DEBUG)

	Info("should be filtered")
	Error("should appear")
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "should be filtered") {
		t.Errorf("info line written despite WARN level:\n%s", content)
	}
	if !strings.Contains(content, "should appear") {
		t.Errorf("error line missing:\n%s", content)
	}
}
