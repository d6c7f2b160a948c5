package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/deepwater-app/deepwater/internal/resource"
)

// AppName names the configuration and log directories
const AppName = "DeepWater"

// DefaultModelName is the classifier artifact shipped next to the binary
const DefaultModelName = "fish_model_2features.json"

// Environment variables that override the stored Telegram credentials
const (
	EnvTelegramToken  = "DEEPWATER_TELEGRAM_TOKEN"
	EnvTelegramChatID = "DEEPWATER_TELEGRAM_CHAT_ID"
)

// Config holds application configuration
type Config struct {
	Hotkey          string   `json:"hotkey"` // e.g. "F11", "ctrl+shift+F"
	TelegramEnabled bool     `json:"telegram_enabled"`
	TelegramToken   string   `json:"telegram_token"`
	TelegramChatID  string   `json:"telegram_chat_id"`
	ModelPath       string   `json:"model_path"`
	AudioDeviceID   int      `json:"audio_device_id"` // -1 selects by device_pattern
	DevicePatterns  []string `json:"device_pattern"`
	DesktopNotify   bool     `json:"desktop_notify"`
	LogLevel        string   `json:"log_level"`
	mu              sync.RWMutex
}

// IsValidModelExtension checks if the file has a classifier artifact extension
func IsValidModelExtension(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Hotkey:          "F11",
		TelegramEnabled: true,
		ModelPath:       DefaultModelName,
		AudioDeviceID:   -1, // -1 means pick by pattern, then system default
		DevicePatterns:  []string{"CABLE Output", "Stereo Mix"},
		LogLevel:        "INFO",
	}
}

// Load loads configuration from the specified path
func Load(path string) (*Config, error) {
	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON over the defaults so missing fields keep default values
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if strings.TrimSpace(config.Hotkey) == "" {
		config.Hotkey = "F11"
	}
	if config.ModelPath == "" {
		config.ModelPath = DefaultModelName
	}

	return config, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to JSON
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds the bot token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Dir returns the per-user application directory
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		homeDir, _ := os.UserHomeDir()
		base = homeDir
	}
	return filepath.Join(base, AppName)
}

// ApplyEnv overrides the Telegram credentials from the environment
// lookup is normally os.LookupEnv
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := lookup(EnvTelegramToken); ok && v != "" {
		c.TelegramToken = v
	}
	if v, ok := lookup(EnvTelegramChatID); ok && v != "" {
		c.TelegramChatID = v
	}
}

// Update updates configuration fields. Either every update is applied or,
// on error, none is
func (c *Config) Update(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cloneLocked()

	// Apply updates
	for key, value := range updates {
		switch key {
		case "hotkey":
			v, ok := value.(string)
			if !ok || strings.TrimSpace(v) == "" {
				return fmt.Errorf("invalid hotkey: %v", value)
			}
			next.Hotkey = strings.TrimSpace(v)
		case "telegram_enabled":
			v, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid telegram_enabled: %v", value)
			}
			next.TelegramEnabled = v
		case "telegram_token":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid telegram_token: %v", value)
			}
			next.TelegramToken = strings.TrimSpace(v)
		case "telegram_chat_id":
			switch v := value.(type) {
			case string:
				next.TelegramChatID = strings.TrimSpace(v)
			case float64:
				// JSON numbers arrive as float64
				next.TelegramChatID = fmt.Sprintf("%.0f", v)
			default:
				return fmt.Errorf("invalid telegram_chat_id: %v", value)
			}
		case "model_path":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid model_path: %v", value)
			}
			next.ModelPath = v
		case "audio_device_id":
			// JSON numbers arrive as float64
			v, ok := value.(float64)
			if !ok || v != math.Trunc(v) {
				return fmt.Errorf("invalid audio_device_id: %v", value)
			}
			next.AudioDeviceID = int(v)
		case "device_pattern":
			list, ok := value.([]interface{})
			if !ok {
				return fmt.Errorf("invalid device_pattern: %v", value)
			}
			patterns := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("invalid device_pattern entry: %v", item)
				}
				if s = strings.TrimSpace(s); s != "" {
					patterns = append(patterns, s)
				}
			}
			next.DevicePatterns = patterns
		case "desktop_notify":
			v, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid desktop_notify: %v", value)
			}
			next.DesktopNotify = v
		case "log_level":
			v, ok := value.(string)
			if !ok || !validLogLevel(v) {
				return fmt.Errorf("invalid log_level: %v", value)
			}
			next.LogLevel = strings.ToUpper(v)
		}
	}

	c.Hotkey = next.Hotkey
	c.TelegramEnabled = next.TelegramEnabled
	c.TelegramToken = next.TelegramToken
	c.TelegramChatID = next.TelegramChatID
	c.ModelPath = next.ModelPath
	c.AudioDeviceID = next.AudioDeviceID
	c.DevicePatterns = next.DevicePatterns
	c.DesktopNotify = next.DesktopNotify
	c.LogLevel = next.LogLevel

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cloneLocked()
}

func (c *Config) cloneLocked() *Config {
	return &Config{
		Hotkey:          c.Hotkey,
		TelegramEnabled: c.TelegramEnabled,
		TelegramToken:   c.TelegramToken,
		TelegramChatID:  c.TelegramChatID,
		ModelPath:       c.ModelPath,
		AudioDeviceID:   c.AudioDeviceID,
		DevicePatterns:  append([]string(nil), c.DevicePatterns...),
		DesktopNotify:   c.DesktopNotify,
		LogLevel:        c.LogLevel,
	}
}

// Redacted returns a clone with the bot token masked, for display
func (c *Config) Redacted() *Config {
	r := c.Clone()
	if r.TelegramToken != "" {
		r.TelegramToken = "********"
	}
	return r
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	// Bare names resolve next to the executable
	if !filepath.IsAbs(path) {
		return resource.Path(path), nil
	}

	return filepath.Clean(path), nil
}

// GetModelPath returns the expanded model path
func (c *Config) GetModelPath() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ExpandPath(c.ModelPath)
}

// ValidateModelPath validates the model file path
func (c *Config) ValidateModelPath() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ModelPath == "" {
		return fmt.Errorf("model path is not set")
	}

	expandedPath, err := ExpandPath(c.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to expand model path: %w", err)
	}

	// Check if file exists
	info, err := os.Stat(expandedPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", expandedPath)
	}
	if err != nil {
		return fmt.Errorf("failed to check model file: %w", err)
	}

	// Check if it's a regular file
	if info.IsDir() {
		return fmt.Errorf("model path is a directory, not a file: %s", expandedPath)
	}

	// Check file extension
	if !IsValidModelExtension(expandedPath) {
		return fmt.Errorf("model file must have .json extension: %s", expandedPath)
	}

	return nil
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if strings.TrimSpace(c.Hotkey) == "" {
		return fmt.Errorf("hotkey cannot be empty")
	}

	if !validLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level: %s (must be DEBUG, INFO, WARN or ERROR)", c.LogLevel)
	}

	if c.AudioDeviceID < -1 {
		return fmt.Errorf("invalid audio_device_id: %d", c.AudioDeviceID)
	}

	// An enabled channel without a token is allowed; sends are skipped

	return nil
}

func validLogLevel(level string) bool {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		return true
	}
	return false
}
