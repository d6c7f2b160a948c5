// Package orchestrator owns the detector lifecycle: audio capture, the
// detection loop, auto casting, hotkey binding and notifications
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepwater-app/deepwater/internal/actuation"
	"github.com/deepwater-app/deepwater/internal/audio"
	"github.com/deepwater-app/deepwater/internal/classifier"
	"github.com/deepwater-app/deepwater/internal/config"
	"github.com/deepwater-app/deepwater/internal/detector"
	"github.com/deepwater-app/deepwater/internal/hotkey"
	"github.com/deepwater-app/deepwater/internal/logger"
	"github.com/deepwater-app/deepwater/internal/notification"
	"github.com/deepwater-app/deepwater/internal/ringbuffer"
)

var (
	// ErrAlreadyRunning is returned by Start while the detector runs
	ErrAlreadyRunning = errors.New("detector already running")
	// ErrNotRunning is returned by Toggle while the detector is stopped
	ErrNotRunning = errors.New("detector not running")
)

const (
	// SampleRate is the capture rate the classifier was trained at
	SampleRate = 44100
	// BufferSeconds is the ring buffer history
	BufferSeconds = 10
	// StopTimeout bounds each join during Stop
	StopTimeout = time.Second
)

// State is the detector lifecycle state
type State int32

const (
	// Stopped means no session is active
	Stopped State = iota
	// Starting means the session is being opened
	Starting
	// Running means the detector loop is active
	Running
	// Stopping means the session is being torn down
	Stopping
)

// String returns the lowercase state name
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Deps are the collaborators of an Orchestrator. Audio and Pointer are
// required; the rest have defaults
type Deps struct {
	Audio   audio.Source
	Pointer actuation.Pointer
	Hotkeys hotkey.Registrar // nil disables the toggle hotkey

	// Classifier overrides loading cfg.ModelPath
	Classifier classifier.Classifier

	// Notifier builds the notifier for a config. Defaults to
	// notification.Build; a nil result disables notifications
	Notifier func(cfg *config.Config) notification.Notifier

	Log logger.Sink

	SampleRate int
	Detector   *detector.Config
	Actuation  *actuation.Config
}

// session is one Start..Stop run
type session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	stream   audio.Stream
	buffer   *ringbuffer.Buffer
	detector *detector.Detector
}

type notifierBox struct {
	n notification.Notifier
}

// Orchestrator wires the pipeline and serializes every control operation
type Orchestrator struct {
	deps        Deps
	log         logger.Sink
	clf         classifier.Classifier
	detectorCfg detector.Config
	signal      *detector.Signal
	controller  *actuation.Controller
	dispatcher  *notification.Dispatcher
	notifier    atomic.Pointer[notifierBox]
	state       atomic.Int32

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex

	// mu guards the fields below; the hotkey callback and UpdateConfig
	// both hold it
	mu         sync.Mutex
	cfg        *config.Config
	session    *session
	binding    hotkey.Handle
	boundLabel string
	generation uint64
}

// New creates a stopped orchestrator. The classifier is loaded here so a
// missing or corrupt model fails before anything starts
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if deps.Audio == nil {
		return nil, errors.New("orchestrator: audio source is required")
	}
	if deps.Pointer == nil {
		return nil, errors.New("orchestrator: pointer is required")
	}
	if deps.Log == nil {
		deps.Log = logger.Nop{}
	}
	if deps.SampleRate <= 0 {
		deps.SampleRate = SampleRate
	}
	if deps.Notifier == nil {
		log := deps.Log
		deps.Notifier = func(c *config.Config) notification.Notifier {
			return notification.Build(notification.Options{
				AppName:         config.AppName,
				TelegramEnabled: c.TelegramEnabled,
				TelegramToken:   c.TelegramToken,
				TelegramChatID:  c.TelegramChatID,
				Desktop:         c.DesktopNotify,
			}, log)
		}
	}

	clf := deps.Classifier
	if clf == nil {
		path, err := cfg.GetModelPath()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", classifier.ErrModelLoad, err)
		}
		model, err := classifier.Load(path)
		if err != nil {
			deps.Log.Error("Failed to load model %s: %v", path, err)
			return nil, err
		}
		deps.Log.Info("Model loaded: %s (%s)", path, model.Kind())
		clf = model
	}

	detectorCfg := detector.DefaultConfig(deps.SampleRate)
	if deps.Detector != nil {
		detectorCfg = *deps.Detector
	}
	actuationCfg := actuation.DefaultConfig()
	if deps.Actuation != nil {
		actuationCfg = *deps.Actuation
	}

	o := &Orchestrator{
		deps:        deps,
		log:         deps.Log,
		clf:         clf,
		detectorCfg: detectorCfg,
		signal:      detector.NewSignal(),
		cfg:         cfg.Clone(),
	}
	o.controller = actuation.New(actuationCfg, deps.Pointer, o.signal, deps.Log)
	o.dispatcher = notification.NewDispatcher(notification.Func(o.notify), notification.DefaultTimeout, deps.Log)
	o.notifier.Store(&notifierBox{n: deps.Notifier(o.cfg)})
	o.state.Store(int32(Stopped))

	return o, nil
}

// Start opens the capture stream, starts the detection loop and binds the
// toggle hotkey. On a device error nothing is left running
func (o *Orchestrator) Start() error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if o.State() != Stopped {
		o.log.Warn("Detector already running")
		return ErrAlreadyRunning
	}
	o.setState(Starting)

	cfg := o.Config()
	audioCfg := audio.DefaultConfig()
	audioCfg.SampleRate = o.deps.SampleRate
	audioCfg.BlockSize = audio.BlockFrames(o.deps.SampleRate, 50*time.Millisecond)
	audioCfg.DeviceID = cfg.AudioDeviceID
	audioCfg.LoopbackPatterns = cfg.DevicePatterns

	buffer := ringbuffer.NewSeconds(BufferSeconds, o.deps.SampleRate)
	stream, err := o.deps.Audio.Open(audioCfg, buffer)
	if err != nil {
		o.log.Error("Failed to start capture: %v", err)
		o.setState(Stopped)
		return fmt.Errorf("failed to start capture: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	det := detector.New(o.detectorCfg, buffer, o.clf, o.signal, o.log)
	det.OnStrike(o.onStrike)

	s := &session{
		ctx:      ctx,
		cancel:   cancel,
		stream:   stream,
		buffer:   buffer,
		detector: det,
	}

	o.signal.Reset()
	det.Start(ctx)

	o.mu.Lock()
	o.session = s
	o.bindLocked(o.cfg.Hotkey)
	o.mu.Unlock()

	o.setState(Running)
	o.log.Info("Detector started (device: %s)", stream.Device().Name)
	return nil
}

// Stop disables auto casting, stops the detection loop, closes the capture
// stream and unbinds the hotkey. Safe to call when not running
func (o *Orchestrator) Stop() {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	s := o.session
	o.session = nil
	o.unbindLocked()
	o.mu.Unlock()

	if s == nil {
		o.log.Debug("Stop ignored: detector not running")
		return
	}
	o.setState(Stopping)

	o.controller.Disable()
	s.cancel()

	if !waitDone(s.detector.Done(), StopTimeout) {
		o.log.Warn("Detection loop did not stop within %s", StopTimeout)
	}
	if !o.controller.Wait(StopTimeout) {
		o.log.Warn("Auto casting did not stop within %s", StopTimeout)
	}

	if err := s.stream.Close(); err != nil {
		o.log.Warn("Failed to close capture stream: %v", err)
	}

	o.setState(Stopped)
	o.log.Info("Detector stopped")
}

// Toggle flips auto casting and returns the new enabled state
func (o *Orchestrator) Toggle() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.toggleLocked()
}

func (o *Orchestrator) toggleLocked() (bool, error) {
	if o.session == nil {
		o.log.Warn("Start the detector before enabling auto casting")
		return false, ErrNotRunning
	}
	return o.controller.Toggle(o.session.ctx), nil
}

// hotkeyFired runs on the hotkey listener. Fires from a superseded
// binding are ignored
func (o *Orchestrator) hotkeyFired(generation uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if generation != o.generation {
		o.log.Debug("Ignoring stale hotkey binding")
		return
	}
	if _, err := o.toggleLocked(); err != nil {
		o.log.Debug("Hotkey toggle ignored: %v", err)
	}
}

// UpdateConfig replaces the configuration and rebinds the hotkey when its
// label changed. The audio pipeline is not touched; device settings apply
// on the next Start
func (o *Orchestrator) UpdateConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	next := cfg.Clone()

	o.mu.Lock()
	defer o.mu.Unlock()

	o.cfg = next
	o.notifier.Store(&notifierBox{n: o.deps.Notifier(next)})

	if o.session != nil && next.Hotkey != o.boundLabel {
		o.unbindLocked()
		o.bindLocked(next.Hotkey)
	}

	o.log.Info("Settings updated")
	return nil
}

// bindLocked registers label for the current generation. Failures are
// logged; the pipeline keeps running without a hotkey
func (o *Orchestrator) bindLocked(label string) {
	o.generation++
	o.boundLabel = label
	if o.deps.Hotkeys == nil {
		return
	}

	gen := o.generation
	handle, err := o.deps.Hotkeys.Register(label, func() {
		o.hotkeyFired(gen)
	})
	if err != nil {
		o.log.Error("Failed to register hotkey %s: %v", label, err)
		return
	}
	o.binding = handle
	o.log.Info("Hotkey registered: %s", label)
}

// unbindLocked releases the current binding and invalidates its generation
func (o *Orchestrator) unbindLocked() {
	o.generation++
	o.boundLabel = ""
	if o.binding == nil {
		return
	}
	if err := o.binding.Unregister(); err != nil {
		o.log.Warn("Failed to unregister hotkey: %v", err)
	}
	o.binding = nil
}

func (o *Orchestrator) onStrike(s detector.Strike) {
	o.dispatcher.Dispatch(notification.StrikeEvent(config.AppName, s.ID, s.At))
}

// notify delivers through the notifier built from the current config
func (o *Orchestrator) notify(ctx context.Context, e notification.Event) error {
	box := o.notifier.Load()
	if box == nil || box.n == nil {
		return nil
	}
	return box.n.Notify(ctx, e)
}

// Close stops the detector and waits for pending notifications
func (o *Orchestrator) Close() {
	o.Stop()
	o.dispatcher.Wait()
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// State returns the lifecycle state
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// IsRunning reports whether the detector is running
func (o *Orchestrator) IsRunning() bool {
	return o.State() == Running
}

// Alive reports whether the detection loop goroutine is running
func (o *Orchestrator) Alive() bool {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()
	return s != nil && s.detector.Alive()
}

// Config returns a copy of the current configuration
func (o *Orchestrator) Config() *config.Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.Clone()
}

// ActuationState returns the auto casting state
func (o *Orchestrator) ActuationState() actuation.State {
	return o.controller.State()
}

// OnActuationState sets an observer for auto casting transitions
func (o *Orchestrator) OnActuationState(fn func(actuation.State)) {
	o.controller.OnState(fn)
}

// HotkeyLabel returns the label currently bound, or "" when unbound
func (o *Orchestrator) HotkeyLabel() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.binding == nil {
		return ""
	}
	return o.boundLabel
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	if done == nil {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
