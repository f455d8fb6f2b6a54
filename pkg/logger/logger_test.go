package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_FileCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	log := New(Options{Level: "debug", LogFile: path, NoConsole: true})
	log.Info("hello from test", zap.String("key", "value"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("log file missing message: %s", data)
	}
	if !strings.Contains(string(data), `"key":"value"`) {
		t.Errorf("log file missing structured field: %s", data)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	log := New(Options{Level: "error", LogFile: path, NoConsole: true})
	log.Info("filtered out")
	log.Error("kept")
	_ = log.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "filtered out") {
		t.Error("info message passed an error-level logger")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("error message missing")
	}
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	log := New(Options{Level: "nonsense", LogFile: path, NoConsole: true})
	log.Debug("below info")
	log.Info("at info")
	_ = log.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "below info") {
		t.Error("debug message passed an info-level logger")
	}
	if !strings.Contains(string(data), "at info") {
		t.Error("info message missing")
	}
}

func TestNew_NoCores(t *testing.T) {
	log := New(Options{NoConsole: true})
	// A logger without cores must still be usable.
	log.Info("goes nowhere")
}
