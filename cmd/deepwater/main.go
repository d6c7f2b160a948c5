package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deepwater-app/deepwater/internal/actuation"
	"github.com/deepwater-app/deepwater/internal/api"
	"github.com/deepwater-app/deepwater/internal/audio"
	"github.com/deepwater-app/deepwater/internal/classifier"
	"github.com/deepwater-app/deepwater/internal/config"
	"github.com/deepwater-app/deepwater/internal/hotkey"
	"github.com/deepwater-app/deepwater/internal/logger"
	"github.com/deepwater-app/deepwater/internal/notification"
	"github.com/deepwater-app/deepwater/internal/orchestrator"
	"github.com/deepwater-app/deepwater/internal/permissions"
	"github.com/deepwater-app/deepwater/internal/pointer"
	"github.com/deepwater-app/deepwater/internal/resource"
	"github.com/deepwater-app/deepwater/internal/server"
	"github.com/deepwater-app/deepwater/internal/setup"
	"github.com/deepwater-app/deepwater/internal/tray"
)

const version = "0.1.0"

// recentLogSize is how many entries the settings page log pane shows
const recentLogSize = 200

// App holds all application state
type App struct {
	fileLog    *logger.Logger
	recent     *logger.Recent
	log        logger.Sink
	configPath string

	source     *audio.PortAudioSource
	hotkeys    *hotkey.Manager
	orch       *orchestrator.Orchestrator
	trayMgr    *tray.Manager
	httpServer *server.Server
	setup      *setup.Tracker

	cancel        context.CancelFunc
	stopRequested atomic.Bool
}

// trackedController records user-requested stops so the health monitor
// only reports abnormal ones
type trackedController struct {
	*orchestrator.Orchestrator
	stopRequested *atomic.Bool
}

func (c trackedController) Start() error {
	c.stopRequested.Store(false)
	return c.Orchestrator.Start()
}

func (c trackedController) Stop() {
	c.stopRequested.Store(true)
	c.Orchestrator.Stop()
}

func init() {
	// systray and the hotkey backend need the main thread on macOS
	runtime.LockOSThread()
}

func main() {
	app := &App{}

	loggerConfig := logger.DefaultConfig()
	loggerConfig.Console = os.Stderr
	var err error
	app.fileLog, err = logger.New(loggerConfig)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer app.fileLog.Close()

	app.recent = logger.NewRecent(recentLogSize, logger.INFO)
	app.log = logger.Tee{app.fileLog, app.recent}
	app.log.Info("%s v%s starting", config.AppName, version)

	// Secrets from .env never override the real environment
	for _, path := range []string{resource.Path(".env"), filepath.Join(config.Dir(), ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			app.log.Warn("Failed to load %s: %v", path, err)
		} else {
			app.log.Debug("Loaded environment from %s", path)
		}
	}

	app.configPath = config.GetConfigPath()
	app.setup, err = setup.New(app.configPath)
	if err != nil {
		app.log.Error("Failed to initialize setup tracker: %v", err)
	}
	cfg, err := config.Load(app.configPath)
	if err != nil {
		app.log.Error("Failed to load config: %v", err)
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	app.setLevel(cfg)
	app.log.Info("Config loaded from %s", app.configPath)

	app.source = audio.NewPortAudioSource(app.log)
	app.hotkeys = hotkey.New()
	defer app.hotkeys.Close()

	app.orch, err = orchestrator.New(cfg, orchestrator.Deps{
		Audio:   app.source,
		Pointer: pointer.NewRobot(pointer.Left, app.log),
		Hotkeys: app.hotkeys,
		Log:     app.log,
	})
	if err != nil {
		if errors.Is(err, classifier.ErrModelLoad) {
			app.reportModelError(cfg)
		}
		app.log.Error("Failed to initialize detector: %v", err)
		log.Fatalf("Failed to initialize detector: %v", err)
	}
	defer app.orch.Close()

	app.httpServer = server.New(server.DefaultConfig(), app.log)
	apiHandler := api.New(trackedController{app.orch, &app.stopRequested}, api.Options{
		Devices:    app.source,
		Logs:       app.recent,
		Setup:      app.setup,
		ConfigPath: app.configPath,
		OnSaved:    app.setLevel,
		Log:        app.log,
	})
	apiHandler.RegisterRoutes(app.httpServer.GetMux())

	app.trayMgr = tray.NewManager(tray.Config{
		AppName:        config.AppName,
		OnReady:        app.onReady,
		OnStart:        app.handleStart,
		OnStop:         app.handleStop,
		OnToggle:       app.handleToggle,
		OnSettings:     app.handleOpenSettings,
		OnDeviceChange: app.handleDeviceChange,
		OnQuit:         app.handleQuit,
		Log:            app.log,
	})

	// Blocks until Quit
	app.trayMgr.Run()
}

// reportModelError tells the user the classifier could not be loaded
// before the process exits
func (a *App) reportModelError(cfg *config.Config) {
	path, _ := cfg.GetModelPath()
	n := notification.Build(notification.Options{
		AppName:         config.AppName,
		TelegramEnabled: cfg.TelegramEnabled,
		TelegramToken:   cfg.TelegramToken,
		TelegramChatID:  cfg.TelegramChatID,
		Desktop:         true,
	}, a.log)

	ctx, cancel := context.WithTimeout(context.Background(), notification.DefaultTimeout)
	defer cancel()
	if err := notification.NewManager(config.AppName, n).ModelNotFound(ctx, path); err != nil {
		a.log.Warn("Notification failed: %v", err)
	}
}

func (a *App) setLevel(cfg *config.Config) {
	a.fileLog.SetLevel(logger.ParseLevel(cfg.LogLevel))
}

// onReady is called by systray once the menu exists
func (a *App) onReady() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("Failed to start HTTP server: %v", err)
	}

	a.orch.OnActuationState(func(actuation.State) { a.refreshTray() })
	go a.orch.Monitor(ctx, orchestrator.HealthInterval, a.onRunningChange)
	go a.refreshLoop(ctx)

	a.checkPermissions()
	a.refreshDevices()
	a.refreshTray()

	if a.setup != nil && a.setup.ShouldShow() {
		a.log.Info("Setup not completed, opening settings page")
		a.handleOpenSettings()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.log.Info("Received termination signal")
		a.handleQuit()
		a.trayMgr.Quit()
	}()

	fmt.Println("\n==========================================================")
	fmt.Printf("[start] %s v%s\n", config.AppName, version)
	fmt.Println("==========================================================")
	fmt.Printf("[settings] %s\n", a.httpServer.URL())
	fmt.Printf("[hotkey] %s toggles auto cast while listening\n", a.orch.Config().Hotkey)
	fmt.Printf("[quit] Ctrl+C or Quit from the tray menu\n")
	fmt.Println("==========================================================")
}

// checkPermissions warns about missing capture or input permissions and
// opens the settings page for each
func (a *App) checkPermissions() {
	checker := permissions.NewChecker()
	missing := checker.Missing()
	if len(missing) == 0 {
		return
	}

	for _, p := range missing {
		a.log.Warn("Permission %s: %s", p, checker.Status(p))
		if err := checker.OpenSettings(p); err != nil {
			a.log.Warn("Failed to open settings for %s: %v", p, err)
		}
	}
	message := checker.MissingMessage()
	a.alert(func(nm *notification.Manager, ctx context.Context) error {
		return nm.SendError(ctx, message)
	})
}

// alert delivers a desktop notification and waits for it
func (a *App) alert(send func(nm *notification.Manager, ctx context.Context) error) {
	n := notification.Build(notification.Options{AppName: config.AppName, Desktop: true}, a.log)
	ctx, cancel := context.WithTimeout(context.Background(), notification.DefaultTimeout)
	defer cancel()
	if err := send(notification.NewManager(config.AppName, n), ctx); err != nil {
		a.log.Warn("Notification failed: %v", err)
	}
}

// onRunningChange is called by the health monitor
func (a *App) onRunningChange(running bool) {
	a.refreshTray()
	if running || a.stopRequested.Load() {
		return
	}

	a.log.Warn("Detector stopped unexpectedly")
	a.alert((*notification.Manager).DetectorStopped)
}

// refreshLoop keeps the strike count in the tray current
func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(orchestrator.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshTray()
		}
	}
}

func (a *App) refreshTray() {
	st := a.orch.Status()
	a.trayMgr.SetStatus(st.Running, st.AutoCast, int(st.Strikes))
}

func (a *App) refreshDevices() {
	devices, err := a.source.ListDevices()
	if err != nil {
		a.log.Warn("Failed to list audio devices: %v", err)
		return
	}

	cfg := a.orch.Config()
	selection := audio.DefaultConfig()
	selection.DeviceID = cfg.AudioDeviceID
	selection.LoopbackPatterns = cfg.DevicePatterns
	selected, _, selErr := audio.SelectDevice(devices, selection)

	items := make([]tray.Device, 0, len(devices))
	for _, d := range devices {
		items = append(items, tray.Device{
			ID:        d.ID,
			Name:      d.Name,
			IsDefault: d.IsDefault,
			IsCurrent: selErr == nil && d.ID == selected.ID,
		})
	}
	a.trayMgr.UpdateDeviceMenu(items)
}

func (a *App) handleStart() {
	a.stopRequested.Store(false)
	if err := a.orch.Start(); err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			a.log.Debug("Start ignored: %v", err)
		} else {
			a.log.Error("Failed to start detector: %v", err)
			if errors.Is(err, audio.ErrDevice) {
				a.alert((*notification.Manager).DeviceNotFound)
			}
		}
	}
	a.refreshTray()
}

func (a *App) handleStop() {
	a.stopRequested.Store(true)
	a.orch.Stop()
	a.refreshTray()
}

func (a *App) handleToggle() {
	if _, err := a.orch.Toggle(); err != nil {
		a.log.Warn("Toggle ignored: %v", err)
	}
	a.refreshTray()
}

// handleDeviceChange persists the selected device. It is used from the
// next Start
func (a *App) handleDeviceChange(deviceID int) {
	cfg := a.orch.Config()
	if err := cfg.Update(map[string]interface{}{"audio_device_id": float64(deviceID)}); err != nil {
		a.log.Error("Failed to select device %d: %v", deviceID, err)
		return
	}
	if err := cfg.Save(a.configPath); err != nil {
		a.log.Error("Failed to save config: %v", err)
		return
	}
	if err := a.orch.UpdateConfig(cfg); err != nil {
		a.log.Error("Failed to apply config: %v", err)
		return
	}
	a.log.Info("Audio device %d selected", deviceID)
	if a.orch.IsRunning() {
		a.log.Info("Restart the detector to switch devices")
	}
	a.refreshDevices()
}

func (a *App) handleOpenSettings() {
	if !a.httpServer.IsRunning() {
		a.log.Error("Settings page is not available: HTTP server not running")
		return
	}

	url := a.httpServer.URL()
	a.log.Info("Opening browser: %s", url)

	go func() {
		if err := openBrowser(url); err != nil {
			a.log.Error("Failed to open browser: %v", err)
			fmt.Printf("\n[settings] Open %s in your browser\n\n", url)
		}
	}()
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Run()
}

func (a *App) handleQuit() {
	a.log.Info("Quit requested")

	if a.cancel != nil {
		a.cancel()
	}
	a.stopRequested.Store(true)
	a.orch.Stop()

	if a.httpServer != nil && a.httpServer.IsRunning() {
		if err := a.httpServer.Stop(); err != nil {
			a.log.Error("Failed to stop HTTP server: %v", err)
		}
	}

	a.log.Info("Application exiting")
}
