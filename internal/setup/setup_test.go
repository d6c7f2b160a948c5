package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deepwater-app/deepwater/internal/config"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker, err := New(filepath.Join(t.TempDir(), "DeepWater", "config.json"))
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	return tracker
}

func TestNewCreatesDirectory(t *testing.T) {
	tracker := newTracker(t)

	if _, err := os.Stat(filepath.Dir(tracker.configPath)); err != nil {
		t.Errorf("Expected config directory to exist: %v", err)
	}
	if filepath.Base(tracker.flagFile) != flagFileName {
		t.Errorf("Unexpected flag file %s", tracker.flagFile)
	}
}

func TestIsFirstRun(t *testing.T) {
	tracker := newTracker(t)

	if !tracker.IsFirstRun() {
		t.Error("Expected first run when config doesn't exist")
	}
	if !tracker.ShouldShow() {
		t.Error("Expected setup to be shown on first run")
	}

	if err := config.DefaultConfig().Save(tracker.configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	if tracker.IsFirstRun() {
		t.Error("Expected not first run once config exists")
	}
	if !tracker.ShouldShow() {
		t.Error("Expected setup to be shown until completed")
	}
}

func TestMarkCompletedAndReset(t *testing.T) {
	tracker := newTracker(t)
	if err := config.DefaultConfig().Save(tracker.configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if tracker.IsCompleted() {
		t.Error("Expected setup not completed initially")
	}
	if err := tracker.MarkCompleted(); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if !tracker.IsCompleted() || tracker.ShouldShow() {
		t.Error("Expected setup completed and hidden")
	}

	if err := tracker.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if tracker.IsCompleted() {
		t.Error("Expected setup not completed after reset")
	}

	// Reset twice is fine
	if err := tracker.Reset(); err != nil {
		t.Errorf("Second reset failed: %v", err)
	}
}

func TestProgress(t *testing.T) {
	tracker := newTracker(t)
	dir := t.TempDir()
	model := filepath.Join(dir, "model.json")
	if err := os.WriteFile(model, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.ModelPath = filepath.Join(dir, "missing.json")
	cfg.TelegramToken = ""
	cfg.DesktopNotify = false

	p := tracker.Progress(cfg)
	if p.ModelFound {
		t.Error("Expected missing model")
	}
	if !p.HotkeyConfigured {
		t.Error("Expected default hotkey to be valid")
	}
	if p.NotificationsConfigured {
		t.Error("Expected notifications unconfigured without token or desktop")
	}
	if p.Completed {
		t.Error("Expected not completed")
	}

	cfg.ModelPath = model
	cfg.TelegramEnabled = true
	cfg.TelegramToken = "123:abc"
	cfg.TelegramChatID = "42"
	cfg.Hotkey = "ctrl+F99"

	p = tracker.Progress(cfg)
	if !p.ModelFound {
		t.Error("Expected model found")
	}
	if p.HotkeyConfigured {
		t.Error("Expected invalid hotkey")
	}
	if !p.NotificationsConfigured {
		t.Error("Expected telegram to count as configured")
	}
}
