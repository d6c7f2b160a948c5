package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/deepwater-app/deepwater/internal/config"
	"github.com/deepwater-app/deepwater/internal/hotkey"
)

// flagFileName marks that the user finished first-run setup
const flagFileName = ".setup_completed"

// Tracker tracks first-run setup next to the config file
type Tracker struct {
	mu         sync.RWMutex
	configPath string
	flagFile   string
}

// New creates a tracker for the config file at configPath, creating its
// directory if needed
func New(configPath string) (*Tracker, error) {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &Tracker{
		configPath: configPath,
		flagFile:   filepath.Join(dir, flagFileName),
	}, nil
}

// IsFirstRun reports whether no config file has been saved yet
func (t *Tracker) IsFirstRun() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, err := os.Stat(t.configPath)
	return os.IsNotExist(err)
}

// IsCompleted reports whether setup was marked completed
func (t *Tracker) IsCompleted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, err := os.Stat(t.flagFile)
	return err == nil
}

// ShouldShow returns true on first run or while setup is incomplete
func (t *Tracker) ShouldShow() bool {
	return t.IsFirstRun() || !t.IsCompleted()
}

// MarkCompleted records that setup is done
func (t *Tracker) MarkCompleted() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.Create(t.flagFile)
	if err != nil {
		return fmt.Errorf("failed to create setup flag file: %w", err)
	}
	return file.Close()
}

// Reset clears the completed flag
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.Remove(t.flagFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove setup flag file: %w", err)
	}
	return nil
}

// Progress is the completion of each setup step
type Progress struct {
	ModelFound              bool `json:"model_found"`
	HotkeyConfigured        bool `json:"hotkey_configured"`
	NotificationsConfigured bool `json:"notifications_configured"`
	Completed               bool `json:"completed"`
}

// Progress derives the step status from cfg
func (t *Tracker) Progress(cfg *config.Config) Progress {
	c := cfg.Clone()
	telegram := c.TelegramEnabled && c.TelegramToken != "" && c.TelegramChatID != ""

	return Progress{
		ModelFound:              cfg.ValidateModelPath() == nil,
		HotkeyConfigured:        hotkey.ValidateLabel(c.Hotkey) == nil,
		NotificationsConfigured: telegram || c.DesktopNotify,
		Completed:               t.IsCompleted(),
	}
}
