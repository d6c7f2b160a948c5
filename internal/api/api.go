package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/deepwater-app/deepwater/internal/audio"
	"github.com/deepwater-app/deepwater/internal/classifier"
	"github.com/deepwater-app/deepwater/internal/config"
	"github.com/deepwater-app/deepwater/internal/hotkey"
	"github.com/deepwater-app/deepwater/internal/logger"
	"github.com/deepwater-app/deepwater/internal/orchestrator"
	"github.com/deepwater-app/deepwater/internal/setup"
)

// redactedToken is what config.Redacted shows instead of the bot token
// A PUT carrying it back leaves the stored token unchanged
const redactedToken = "********"

// Controller is the detector surface the API drives
// *orchestrator.Orchestrator implements it
type Controller interface {
	Start() error
	Stop()
	Toggle() (bool, error)
	Status() orchestrator.Status
	Config() *config.Config
	UpdateConfig(cfg *config.Config) error
}

// LogSource provides recent log entries. *logger.Recent implements it
type LogSource interface {
	Entries() []logger.Entry
}

// Handler manages API endpoints
type Handler struct {
	controller Controller
	devices    audio.Source
	logs       LogSource
	setup      *setup.Tracker
	configPath string
	onSaved    func(cfg *config.Config) // e.g. apply the log level
	log        logger.Sink
}

// Options configures a Handler
type Options struct {
	Devices    audio.Source
	Logs       LogSource
	Setup      *setup.Tracker // nil disables /api/setup
	ConfigPath string         // defaults to config.GetConfigPath()
	OnSaved    func(cfg *config.Config)
	Log        logger.Sink
}

// New creates a new API handler
func New(controller Controller, opts Options) *Handler {
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.GetConfigPath()
	}
	if opts.Log == nil {
		opts.Log = logger.Nop{}
	}
	return &Handler{
		controller: controller,
		devices:    opts.Devices,
		logs:       opts.Logs,
		setup:      opts.Setup,
		configPath: opts.ConfigPath,
		onSaved:    opts.OnSaved,
		log:        opts.Log,
	}
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/hotkey/validate", h.handleHotkeyValidate)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/models/validate", h.handleModelsValidate)
	mux.HandleFunc("/api/detector/start", h.handleDetectorStart)
	mux.HandleFunc("/api/detector/stop", h.handleDetectorStop)
	mux.HandleFunc("/api/detector/toggle", h.handleDetectorToggle)
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/logs", h.handleLogs)
	if h.setup != nil {
		mux.HandleFunc("/api/setup", h.handleSetup)
		mux.HandleFunc("/api/setup/complete", h.handleSetupComplete)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getSettings returns the current configuration with the token masked
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Config().Redacted())
}

// putSettings validates, persists and applies a partial update
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if token, ok := updates["telegram_token"].(string); ok && token == redactedToken {
		delete(updates, "telegram_token")
	}
	if label, ok := updates["hotkey"].(string); ok {
		if err := hotkey.ValidateLabel(label); err != nil {
			http.Error(w, fmt.Sprintf("Invalid hotkey: %v", err), http.StatusBadRequest)
			return
		}
	}

	cfg := h.controller.Config()
	if err := cfg.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
		return
	}

	// Save to file
	if err := cfg.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	if err := h.controller.UpdateConfig(cfg); err != nil {
		http.Error(w, fmt.Sprintf("Failed to apply config: %v", err), http.StatusInternalServerError)
		return
	}
	if h.onSaved != nil {
		h.onSaved(cfg)
	}

	h.log.Info("Settings saved to %s", h.configPath)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
	})
}

// handleHotkeyValidate handles POST /api/hotkey/validate
func (h *Handler) handleHotkeyValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Hotkey string `json:"hotkey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	binding, err := hotkey.ParseLabel(request.Hotkey)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":     false,
			"message":   err.Error(),
			"conflicts": []string{},
		})
		return
	}

	conflictNames := []string{}
	for _, c := range hotkey.CheckConflicts(binding) {
		conflictNames = append(conflictNames, c.Name)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"canonical": binding.String(),
		"conflicts": conflictNames,
	})
}

// Device represents an audio device
type Device struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	Selected  bool   `json:"selected"`
}

// handleDevices handles GET /api/devices. The device the next Start
// would pick is marked selected
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices := []Device{}
	if h.devices != nil {
		audioDevices, err := h.devices.ListDevices()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list audio devices: %v", err), http.StatusInternalServerError)
			return
		}

		cfg := h.controller.Config()
		selection := audio.DefaultConfig()
		selection.DeviceID = cfg.AudioDeviceID
		selection.LoopbackPatterns = cfg.DevicePatterns
		selected, _, selErr := audio.SelectDevice(audioDevices, selection)

		for _, dev := range audioDevices {
			devices = append(devices, Device{
				ID:        dev.ID,
				Name:      dev.Name,
				IsDefault: dev.IsDefault,
				Selected:  selErr == nil && dev.ID == selected.ID,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
	})
}

// handleModelsValidate handles POST /api/models/validate
func (h *Handler) handleModelsValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Path string `json:"path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Expand path
	expandedPath, err := config.ExpandPath(request.Path)
	if err != nil || expandedPath == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":   false,
			"message": fmt.Sprintf("Invalid path: %q", request.Path),
		})
		return
	}

	// Check if it's a regular file
	info, err := os.Stat(expandedPath)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":   false,
			"message": fmt.Sprintf("File not found: %s", expandedPath),
		})
		return
	}
	if info.IsDir() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":   false,
			"message": "Path is a directory, not a file",
		})
		return
	}

	model, err := classifier.Load(expandedPath)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":   false,
			"message": err.Error(),
		})
		return
	}

	// Valid model file
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   true,
		"message": "Model is valid",
		"path":    expandedPath,
		"name":    filepath.Base(expandedPath),
		"kind":    model.Kind(),
	})
}

// handleDetectorStart handles POST /api/detector/start
func (h *Handler) handleDetectorStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.controller.Start()
	switch {
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, audio.ErrDevice):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, h.controller.Status())
}

// handleDetectorStop handles POST /api/detector/stop
func (h *Handler) handleDetectorStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.controller.Stop()
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// handleDetectorToggle handles POST /api/detector/toggle
func (h *Handler) handleDetectorToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enabled, err := h.controller.Toggle()
	if errors.Is(err, orchestrator.ErrNotRunning) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"auto_cast": enabled,
	})
}

// handleStatus handles GET /api/status
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// handleLogs handles GET /api/logs
func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := []logger.Entry{}
	if h.logs != nil {
		entries = append(entries, h.logs.Entries()...)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// handleSetup handles GET /api/setup
func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.setup.Progress(h.controller.Config()))
}

// handleSetupComplete handles POST /api/setup/complete
func (h *Handler) handleSetupComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.setup.MarkCompleted(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.log.Info("Setup completed")
	writeJSON(w, http.StatusOK, h.setup.Progress(h.controller.Config()))
}
