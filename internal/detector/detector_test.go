package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deepwater-app/deepwater/internal/classifier"
	"github.com/deepwater-app/deepwater/internal/features"
	"github.com/deepwater-app/deepwater/internal/ringbuffer"
)

const testRate = 44100

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingClassifier struct {
	calls  atomic.Int32
	result bool
	err    error
	last   []float64
	mu     sync.Mutex
}

func (c *countingClassifier) Predict(f []float64) (bool, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.last = append([]float64(nil), f...)
	c.mu.Unlock()
	return c.result, c.err
}

type fixedExtractor struct {
	vec features.Vector
	err error
}

func (e fixedExtractor) Extract([]float32) (features.Vector, error) {
	return e.vec, e.err
}

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSink) add(level, format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, v...))
}

func (r *recordingSink) Debug(format string, v ...interface{}) { r.add("DEBUG", format, v...) }
func (r *recordingSink) Info(format string, v ...interface{})  { r.add("INFO", format, v...) }
func (r *recordingSink) Warn(format string, v ...interface{})  { r.add("WARN", format, v...) }
func (r *recordingSink) Error(format string, v ...interface{}) { r.add("ERROR", format, v...) }

func (r *recordingSink) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func filled(n int, v float32) *ringbuffer.Buffer {
	b := ringbuffer.NewSeconds(10, testRate)
	block := make([]float32, n)
	for i := range block {
		block[i] = v
	}
	b.PushBlock(block)
	return b
}

func testConfig(clock *fakeClock) Config {
	cfg := DefaultConfig(testRate)
	cfg.Now = clock.Now
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testRate)

	if cfg.WindowSize != 6615 {
		t.Errorf("Expected window 6615, got %d", cfg.WindowSize)
	}
	if cfg.EnergyThreshold != 0.015 {
		t.Errorf("Expected threshold 0.015, got %v", cfg.EnergyThreshold)
	}
	if cfg.MinStrikeInterval != 7*time.Second {
		t.Errorf("Expected interval 7s, got %v", cfg.MinStrikeInterval)
	}
}

func TestSilenceNeverClassifies(t *testing.T) {
	clock := newFakeClock()
	clf := &countingClassifier{result: true}
	sig := NewSignal()

	d := New(testConfig(clock), filled(6615, 0), clf, sig, nil)

	for i := 0; i < 10; i++ {
		if wait := d.step(); wait != d.config.IdleInterval {
			t.Errorf("Expected idle interval, got %v", wait)
		}
	}

	if clf.calls.Load() != 0 {
		t.Errorf("Expected classifier not to be called, got %d calls", clf.calls.Load())
	}
	if sig.Pending() {
		t.Error("Expected no strike signal")
	}
}

func TestInsufficientDataPolls(t *testing.T) {
	clock := newFakeClock()
	clf := &countingClassifier{result: true}

	d := New(testConfig(clock), filled(100, 0.5), clf, NewSignal(), nil)

	if wait := d.step(); wait != d.config.PollInterval {
		t.Errorf("Expected poll interval, got %v", wait)
	}
	if clf.calls.Load() != 0 {
		t.Error("Expected classifier not to be called with a short buffer")
	}
}

func TestStrikeScenario(t *testing.T) {
	clock := newFakeClock()
	clf := &countingClassifier{result: true}
	sig := NewSignal()

	var strikes []Strike
	d := New(testConfig(clock), filled(6615, 0.05), clf, sig, nil)
	d.SetExtractor(fixedExtractor{vec: features.Vector{Energy: 0.05, SpectralCentroid: 12.3}})
	d.OnStrike(func(s Strike) { strikes = append(strikes, s) })

	d.step()

	if clf.calls.Load() != 1 {
		t.Fatalf("Expected 1 classifier call, got %d", clf.calls.Load())
	}
	if clf.last[0] != 0.05 || clf.last[1] != 12.3 {
		t.Errorf("Expected classifier input [0.05 12.3], got %v", clf.last)
	}
	if !sig.Pending() {
		t.Error("Expected strike signal to be set")
	}
	at, ok := d.LastDetection()
	if !ok || !at.Equal(clock.Now()) {
		t.Errorf("Expected detection recorded at %v, got %v (%v)", clock.Now(), at, ok)
	}
	if len(strikes) != 1 {
		t.Fatalf("Expected 1 strike notification, got %d", len(strikes))
	}
	if strikes[0].Features.SpectralCentroid != 12.3 {
		t.Errorf("Unexpected strike features: %+v", strikes[0].Features)
	}
	if d.Strikes() != 1 {
		t.Errorf("Expected strike count 1, got %d", d.Strikes())
	}
}

func TestCooldownSuppressesSecondStrike(t *testing.T) {
	tests := []struct {
		name       string
		gap        time.Duration
		wantSecond bool
	}{
		{"within interval", 3 * time.Second, false},
		{"just inside", 7*time.Second - time.Millisecond, false},
		{"at interval", 7 * time.Second, true},
		{"after interval", 9 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			clf := &countingClassifier{result: true}
			sig := NewSignal()
			d := New(testConfig(clock), filled(6615, 0.2), clf, sig, nil)

			d.step()
			if !sig.Wait(0) {
				t.Fatal("Expected first strike")
			}

			clock.Advance(tt.gap)
			wait := d.step()

			if got := sig.Wait(0); got != tt.wantSecond {
				t.Errorf("Expected second strike=%v, got %v", tt.wantSecond, got)
			}
			if !tt.wantSecond {
				if wait != d.config.IdleInterval {
					t.Errorf("Expected idle interval during cooldown, got %v", wait)
				}
				if clf.calls.Load() != 1 {
					t.Errorf("Expected classifier skipped during cooldown, got %d calls", clf.calls.Load())
				}
			}
		})
	}
}

func TestNegativeClassificationDoesNotStartCooldown(t *testing.T) {
	clock := newFakeClock()
	clf := &countingClassifier{result: false}
	sig := NewSignal()
	d := New(testConfig(clock), filled(6615, 0.2), clf, sig, nil)

	d.step()
	clf.result = true
	clock.Advance(time.Millisecond)
	d.step()

	if !sig.Pending() {
		t.Error("Expected strike right after a negative classification")
	}
}

func TestErrorsAreNonFatal(t *testing.T) {
	tests := []struct {
		name      string
		extractor Extractor
		clf       classifier.Classifier
		wantErr   error
	}{
		{
			name:      "extraction",
			extractor: fixedExtractor{err: features.ErrEmptyWindow},
			clf:       &countingClassifier{result: true},
			wantErr:   ErrExtraction,
		},
		{
			name:      "classification",
			extractor: features.NewExtractor(),
			clf:       &countingClassifier{err: classifier.ErrInput},
			wantErr:   ErrClassification,
		},
		{
			name:      "panic",
			extractor: features.NewExtractor(),
			clf: classifier.Func(func([]float64) (bool, error) {
				panic("corrupt model")
			}),
			wantErr: ErrClassification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			sink := &recordingSink{}
			sig := NewSignal()
			d := New(testConfig(clock), filled(6615, 0.2), tt.clf, sig, sink)
			d.SetExtractor(tt.extractor)

			_, hit, err := d.classify(d.window)
			if hit || !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v and no hit, got hit=%v err=%v", tt.wantErr, hit, err)
			}

			for i := 0; i < 2; i++ {
				if wait := d.step(); wait != d.config.IdleInterval {
					t.Errorf("Expected idle back-off after error, got %v", wait)
				}
			}
			if sig.Pending() {
				t.Error("Expected no strike after errors")
			}
			if !sink.contains("Detection error") {
				t.Error("Expected error to be logged")
			}
		})
	}
}

func TestRunStopsPromptly(t *testing.T) {
	clf := &countingClassifier{result: false}
	cfg := DefaultConfig(testRate)
	cfg.IdleInterval = 500 * time.Millisecond

	d := New(cfg, filled(6615, 0), clf, NewSignal(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	if !d.Alive() {
		t.Fatal("Expected detector to be alive")
	}

	cancel()
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Detector did not stop within 1s")
	}
	if d.Alive() {
		t.Error("Expected detector not alive after stop")
	}
}

func TestRunDetectsWithRealClock(t *testing.T) {
	clf := &countingClassifier{result: true}
	sig := NewSignal()
	buf := filled(6615, 0.3)

	var hooked atomic.Int32
	d := New(DefaultConfig(testRate), buf, clf, sig, nil)
	d.OnStrike(func(Strike) { hooked.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	if !sig.Wait(time.Second) {
		t.Fatal("Expected strike signal from running loop")
	}

	// The 7s cooldown keeps further iterations from classifying.
	time.Sleep(50 * time.Millisecond)
	if clf.calls.Load() != 1 || hooked.Load() != 1 {
		t.Errorf("Expected exactly one classification and strike, got %d and %d", clf.calls.Load(), hooked.Load())
	}
}

func TestPanickingHookIsNoStrike(t *testing.T) {
	clock := newFakeClock()
	sink := &recordingSink{}
	d := New(testConfig(clock), filled(6615, 0.2), &countingClassifier{result: true}, NewSignal(), sink)
	d.OnStrike(func(Strike) { panic("hook failed") })

	if wait := d.safeStep(); wait != d.config.IdleInterval {
		t.Errorf("Expected idle interval after panic, got %v", wait)
	}
	if !sink.contains("panicked") {
		t.Error("Expected panic to be logged")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	if !d.Alive() {
		t.Error("Expected loop to survive a panicking hook")
	}
}

type panickingSink struct{ recordingSink }

func (p *panickingSink) Debug(string, ...interface{}) { panic("sink failed") }

func TestLoopPanicEndsGoroutine(t *testing.T) {
	sink := &panickingSink{}
	d := New(DefaultConfig(testRate), filled(6615, 0), &countingClassifier{}, NewSignal(), sink)

	d.Start(context.Background())
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected loop to exit after panic")
	}
	if d.Alive() {
		t.Error("Expected Alive to report false after abnormal exit")
	}
	if !sink.contains("terminated") {
		t.Error("Expected abnormal termination to be logged")
	}
}
