package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deepwater-app/deepwater/internal/classifier"
	"github.com/deepwater-app/deepwater/internal/features"
	"github.com/deepwater-app/deepwater/internal/logger"
)

var (
	// ErrExtraction wraps feature extraction failures inside one iteration
	ErrExtraction = errors.New("feature extraction failed")
	// ErrClassification wraps classifier failures inside one iteration
	ErrClassification = errors.New("classification failed")
)

// Config holds the detection loop parameters
type Config struct {
	WindowSize        int           // samples per analysis window
	EnergyThreshold   float64       // RMS gate below which the classifier is skipped
	MinStrikeInterval time.Duration // minimum time between accepted strikes
	IdleInterval      time.Duration // sleep when gated by energy or cooldown
	PollInterval      time.Duration // sleep between regular iterations
	Now               func() time.Time
}

// DefaultConfig returns the production parameters for the given sample rate:
// 0.15s windows, RMS gate 0.015, 7s between strikes
func DefaultConfig(sampleRate int) Config {
	return Config{
		WindowSize:        int(math.Round(0.15 * float64(sampleRate))),
		EnergyThreshold:   0.015,
		MinStrikeInterval: 7 * time.Second,
		IdleInterval:      10 * time.Millisecond,
		PollInterval:      time.Millisecond,
		Now:               time.Now,
	}
}

// Source provides the most recent audio. *ringbuffer.Buffer implements it
type Source interface {
	LatestInto(dst []float32) error
}

// Extractor turns a window into a feature vector. *features.Extractor implements it
type Extractor interface {
	Extract(window []float32) (features.Vector, error)
}

// Strike is one accepted detection
type Strike struct {
	ID       uuid.UUID
	At       time.Time
	Features features.Vector
}

// Detector polls the source, gates on energy and cooldown, classifies and
// raises the strike signal
type Detector struct {
	config     Config
	source     Source
	classifier classifier.Classifier
	extractor  Extractor
	signal     *Signal
	log        logger.Sink
	onStrike   func(Strike)

	window []float32

	mu            sync.Mutex
	lastDetection time.Time
	detected      bool

	strikes atomic.Uint64
	running atomic.Bool
	done    chan struct{}
}

// New creates a detector. The signal is set on every accepted strike
func New(config Config, source Source, clf classifier.Classifier, signal *Signal, log logger.Sink) *Detector {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Millisecond
	}
	if config.IdleInterval <= 0 {
		config.IdleInterval = config.PollInterval
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Detector{
		config:     config,
		source:     source,
		classifier: clf,
		extractor:  features.NewExtractor(),
		signal:     signal,
		log:        log,
		window:     make([]float32, config.WindowSize),
	}
}

// SetExtractor replaces the feature extractor. Call before Start
func (d *Detector) SetExtractor(e Extractor) {
	d.extractor = e
}

// OnStrike sets a hook invoked from the loop after each accepted strike
// The hook must return promptly; slow work belongs in its own goroutine
// Call before Start
func (d *Detector) OnStrike(fn func(Strike)) {
	d.onStrike = fn
}

// Start runs the loop in a new goroutine until ctx is cancelled
func (d *Detector) Start(ctx context.Context) {
	d.done = make(chan struct{})
	d.running.Store(true)
	go func() {
		defer close(d.done)
		defer d.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Detection loop terminated: panic: %v", r)
			}
		}()
		d.Run(ctx)
	}()
}

// Done is closed when the goroutine started by Start exits
func (d *Detector) Done() <-chan struct{} {
	return d.done
}

// Alive reports whether the loop goroutine is still running
func (d *Detector) Alive() bool {
	return d.running.Load()
}

// Run executes the loop on the calling goroutine until ctx is cancelled
func (d *Detector) Run(ctx context.Context) {
	d.log.Debug("Detection loop started (window=%d, threshold=%.3f, interval=%s)",
		d.config.WindowSize, d.config.EnergyThreshold, d.config.MinStrikeInterval)

	for {
		if ctx.Err() != nil {
			d.log.Debug("Detection loop stopped")
			return
		}
		if !sleep(ctx, d.safeStep()) {
			d.log.Debug("Detection loop stopped")
			return
		}
	}
}

// safeStep runs step and treats a panic in any part of the iteration as no
// strike
func (d *Detector) safeStep() (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Detection iteration panicked: %v", r)
			wait = d.config.IdleInterval
		}
	}()
	return d.step()
}

// step runs one iteration and returns how long to sleep before the next
func (d *Detector) step() time.Duration {
	if err := d.source.LatestInto(d.window); err != nil {
		return d.config.PollInterval
	}

	if features.Energy(d.window) < d.config.EnergyThreshold {
		return d.config.IdleInterval
	}

	now := d.config.Now()
	if d.inCooldown(now) {
		return d.config.IdleInterval
	}

	vec, hit, err := d.classify(d.window)
	if err != nil {
		d.log.Warn("Detection error: %v", err)
		return d.config.IdleInterval
	}
	if !hit {
		return d.config.PollInterval
	}

	d.mu.Lock()
	d.lastDetection = now
	d.detected = true
	d.mu.Unlock()

	d.signal.Set()
	n := d.strikes.Add(1)

	strike := Strike{ID: uuid.New(), At: now, Features: vec}
	d.log.Info("!!! STRIKE !!! (%s) #%d energy=%.4f centroid=%.2f id=%s",
		now.Format("15:04:05"), n, vec.Energy, vec.SpectralCentroid, strike.ID)

	if d.onStrike != nil {
		d.onStrike(strike)
	}
	return d.config.PollInterval
}

func (d *Detector) inCooldown(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detected && now.Sub(d.lastDetection) < d.config.MinStrikeInterval
}

// classify extracts features and runs the classifier. Panics are converted
// to errors so a bad window never kills the loop
func (d *Detector) classify(window []float32) (vec features.Vector, hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrClassification, r)
			hit = false
		}
	}()

	vec, err = d.extractor.Extract(window)
	if err != nil {
		return vec, false, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	hit, err = d.classifier.Predict(vec.Slice())
	if err != nil {
		return vec, false, fmt.Errorf("%w: %w", ErrClassification, err)
	}
	return vec, hit, nil
}

// LastDetection returns the time of the last accepted strike, if any
func (d *Detector) LastDetection() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastDetection, d.detected
}

// Strikes returns the number of accepted strikes
func (d *Detector) Strikes() uint64 {
	return d.strikes.Load()
}

// sleep waits for d or until ctx is done, and reports whether the loop
// should continue
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
