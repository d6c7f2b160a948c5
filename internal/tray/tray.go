package tray

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/getlantern/systray"

	"github.com/deepwater-app/deepwater/internal/logger"
	"github.com/deepwater-app/deepwater/internal/resource"
)

// State represents what the detector is doing
type State int

const (
	StateStopped State = iota
	StateListening
	StateAutoCast
)

// StateFor maps the detector status onto a tray state
func StateFor(running, autoCast bool) State {
	switch {
	case !running:
		return StateStopped
	case autoCast:
		return StateAutoCast
	default:
		return StateListening
	}
}

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	case StateAutoCast:
		return "auto cast"
	default:
		return "unknown"
	}
}

// Manager manages the system tray icon and menu
type Manager struct {
	mu       sync.Mutex
	ready    bool
	state    State
	strikes  int
	appName  string
	settings bool

	onReadyCallback func()
	onStart         func()
	onStop          func()
	onToggle        func()
	onSettings      func()
	onDeviceChange  func(deviceID int) // Called when user selects a device
	onQuit          func()
	log             logger.Sink

	menuStatus        *systray.MenuItem
	menuStartStop     *systray.MenuItem
	menuAutoCast      *systray.MenuItem
	menuSettings      *systray.MenuItem
	menuDevices       *systray.MenuItem // Parent menu for device selection
	menuQuit          *systray.MenuItem
	deviceMenuItems   []*systray.MenuItem
	deviceCancelFuncs []context.CancelFunc // Cancel functions for device menu goroutines

	// Icon cache
	icons map[State][]byte
}

// Config holds tray manager configuration
type Config struct {
	AppName        string
	OnReady        func() // Called when systray is ready for initialization
	OnStart        func()
	OnStop         func()
	OnToggle       func() // Toggles auto cast
	OnSettings     func()
	OnDeviceChange func(deviceID int)
	OnQuit         func()
	Log            logger.Sink
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	if config.Log == nil {
		config.Log = logger.Nop{}
	}
	if config.AppName == "" {
		config.AppName = "DeepWater"
	}
	m := &Manager{
		state:           StateStopped,
		appName:         config.AppName,
		settings:        config.OnSettings != nil,
		onReadyCallback: config.OnReady,
		onStart:         config.OnStart,
		onStop:          config.OnStop,
		onToggle:        config.OnToggle,
		onSettings:      config.OnSettings,
		onDeviceChange:  config.OnDeviceChange,
		onQuit:          config.OnQuit,
		log:             config.Log,
	}

	// Load icons once at initialization
	m.icons = map[State][]byte{
		StateStopped:   m.loadIconData("stopped.png", stoppedFallback()),
		StateListening: m.loadIconData("listening.png", listeningFallback()),
		StateAutoCast:  m.loadIconData("autocast.png", autoCastFallback()),
	}

	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

// onReady is called when systray is ready
func (m *Manager) onReady() {
	m.menuStatus = systray.AddMenuItem("", "Detector status")
	m.menuStatus.Disable()

	systray.AddSeparator()

	m.menuStartStop = systray.AddMenuItem("Start detector", "Start or stop listening")
	m.menuAutoCast = systray.AddMenuItem("Auto cast", "Reel in and recast on each strike")
	m.menuDevices = systray.AddMenuItem("Audio device", "Select capture device")
	m.menuSettings = systray.AddMenuItem("Open settings...", "Open settings page")
	if !m.settings {
		m.menuSettings.Disable()
	}

	systray.AddSeparator()

	m.menuQuit = systray.AddMenuItem("Quit", "Quit the application")

	m.mu.Lock()
	m.ready = true
	m.applyLocked()
	m.mu.Unlock()

	// Start event loop
	go m.handleMenuEvents()

	if m.onReadyCallback != nil {
		m.onReadyCallback()
	}
}

// onExit is called when systray is exiting
func (m *Manager) onExit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	m.cancelDeviceLoopsLocked()
}

// handleMenuEvents handles menu item clicks
func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuStartStop.ClickedCh:
			m.mu.Lock()
			stopped := m.state == StateStopped
			m.mu.Unlock()
			if stopped {
				call(m.onStart)
			} else {
				call(m.onStop)
			}
		case <-m.menuAutoCast.ClickedCh:
			call(m.onToggle)
		case <-m.menuSettings.ClickedCh:
			call(m.onSettings)
		case <-m.menuQuit.ClickedCh:
			call(m.onQuit)
			systray.Quit()
			return
		}
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// SetStatus updates the icon and menu from the detector status. It may be
// called before the tray is ready; the latest status is applied on ready
func (m *Manager) SetStatus(running, autoCast bool, strikes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateFor(running, autoCast)
	m.strikes = strikes
	if m.ready {
		m.applyLocked()
	}
}

// State returns the last state set
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// applyLocked pushes the current state to systray
func (m *Manager) applyLocked() {
	systray.SetIcon(m.icons[m.state])
	systray.SetTooltip(m.tooltip())
	m.menuStatus.SetTitle(m.statusLine())

	if m.state == StateStopped {
		m.menuStartStop.SetTitle("Start detector")
		m.menuAutoCast.Disable()
	} else {
		m.menuStartStop.SetTitle("Stop detector")
		m.menuAutoCast.Enable()
	}
	if m.state == StateAutoCast {
		m.menuAutoCast.Check()
	} else {
		m.menuAutoCast.Uncheck()
	}
}

func (m *Manager) tooltip() string {
	return fmt.Sprintf("%s - %s", m.appName, m.state)
}

func (m *Manager) statusLine() string {
	if m.state == StateStopped {
		return "Detector stopped"
	}
	return fmt.Sprintf("Listening, %d strikes", m.strikes)
}

// Device represents an audio device for the menu
type Device struct {
	ID        int
	Name      string
	IsDefault bool
	IsCurrent bool
}

// deviceLabel is the menu title for a device
func deviceLabel(d Device) string {
	if d.IsCurrent {
		return "✓ " + d.Name
	}
	return d.Name
}

// UpdateDeviceMenu replaces the device submenu. Must be called after the
// tray is ready
func (m *Manager) UpdateDeviceMenu(devices []Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return
	}

	m.cancelDeviceLoopsLocked()

	// Remove existing device menu items
	for _, item := range m.deviceMenuItems {
		item.Hide()
	}
	m.deviceMenuItems = nil

	for _, device := range devices {
		tooltip := ""
		if device.IsDefault {
			tooltip = "System default device"
		}

		menuItem := m.menuDevices.AddSubMenuItem(deviceLabel(device), tooltip)
		m.deviceMenuItems = append(m.deviceMenuItems, menuItem)

		ctx, cancel := context.WithCancel(context.Background())
		m.deviceCancelFuncs = append(m.deviceCancelFuncs, cancel)

		go func(id int, item *systray.MenuItem, ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-item.ClickedCh:
					if m.onDeviceChange != nil {
						m.onDeviceChange(id)
					}
				}
			}
		}(device.ID, menuItem, ctx)
	}
}

func (m *Manager) cancelDeviceLoopsLocked() {
	for _, cancel := range m.deviceCancelFuncs {
		if cancel != nil {
			cancel()
		}
	}
	m.deviceCancelFuncs = nil
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// loadIconData loads an icon from assets/icon next to the executable
// If the file cannot be loaded, it returns the fallback placeholder
func (m *Manager) loadIconData(filename string, fallback []byte) []byte {
	iconPath := resource.Path(filepath.Join("assets", "icon", filename))
	data, err := os.ReadFile(iconPath)
	if err != nil {
		m.log.Debug("Tray icon not loaded (%s): %v", iconPath, err)
		return fallback
	}
	return data
}

// stoppedFallback is a placeholder PNG used when the icon file is missing
func stoppedFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x18, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xff, 0xff, 0x3f, 0x03, 0x00, 0x00,
		0x00, 0xff, 0xff, 0x03, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60,
		0x82,
	}
}

// autoCastFallback is the placeholder for the auto cast state
func autoCastFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xc0, 0xc0, 0xc0, 0xf0, 0x9f,
		0x81, 0x81, 0x81, 0x81, 0xff, 0x19, 0x18, 0x18,
		0x18, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0x03,
		0x00, 0x0c, 0x10, 0x02, 0x01, 0x8b, 0xd5, 0xf8,
		0x23, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}

// listeningFallback is the placeholder for the listening state
func listeningFallback() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x19, 0x74, 0x45, 0x58,
		0x74, 0x53, 0x6f, 0x66, 0x74, 0x77, 0x61, 0x72,
		0x65, 0x00, 0x41, 0x64, 0x6f, 0x62, 0x65, 0x20,
		0x49, 0x6d, 0x61, 0x67, 0x65, 0x52, 0x65, 0x61,
		0x64, 0x79, 0x71, 0xc9, 0x65, 0x3c, 0x00, 0x00,
		0x00, 0x20, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda,
		0x62, 0xfc, 0xcf, 0xf0, 0x9f, 0xc1, 0xc8, 0xc0,
		0xc0, 0xc0, 0xff, 0x0c, 0x0c, 0x0c, 0xfc, 0xcf,
		0xc0, 0xc0, 0xc0, 0x00, 0x00, 0x00, 0x00, 0xff,
		0xff, 0x03, 0x00, 0x0c, 0x50, 0x02, 0x01, 0x3e,
		0x0a, 0xe4, 0x5b, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
}
