package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
	delay  time.Duration
}

func (r *recordingNotifier) Notify(ctx context.Context, e Event) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) add(level, format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, level+" "+format)
}

func (s *recordingSink) Debug(format string, args ...interface{}) { s.add("DEBUG", format) }
func (s *recordingSink) Info(format string, args ...interface{})  { s.add("INFO", format) }
func (s *recordingSink) Warn(format string, args ...interface{})  { s.add("WARN", format) }
func (s *recordingSink) Error(format string, args ...interface{}) { s.add("ERROR", format) }

func (s *recordingSink) contains(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestStrikeEvent(t *testing.T) {
	id := uuid.New()
	at := time.Now()
	e := StrikeEvent("DeepWater", id, at)

	if e.Message != StrikeText {
		t.Errorf("Expected %q, got %q", StrikeText, e.Message)
	}
	if e.Type != TypeStrike {
		t.Errorf("Expected TypeStrike, got %s", e.Type)
	}
	if e.StrikeID != id || !e.At.Equal(at) {
		t.Errorf("Strike identity not carried: %+v", e)
	}
}

func TestTelegramNotifier(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotChat = r.URL.Query().Get("chat_id")
		gotText = r.URL.Query().Get("text")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	tg := NewTelegramNotifier("123:abc", "42", sink)
	tg.BaseURL = srv.URL

	if err := tg.Notify(context.Background(), StrikeEvent("DeepWater", uuid.New(), time.Now())); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("Unexpected path %q", gotPath)
	}
	if gotChat != "42" {
		t.Errorf("Expected chat_id 42, got %q", gotChat)
	}
	if gotText != StrikeText {
		t.Errorf("Expected text %q, got %q", StrikeText, gotText)
	}
	if !sink.contains("Telegram notification sent") {
		t.Errorf("Expected success to be logged")
	}
}

func TestTelegramNotifierErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("bad", "1", nil)
	tg.BaseURL = srv.URL
	if err := tg.Notify(context.Background(), Event{Message: "x"}); err == nil {
		t.Error("Expected error for non-200 response")
	}

	empty := NewTelegramNotifier("", "1", nil)
	if err := empty.Notify(context.Background(), Event{Message: "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestTelegramNotifierErrorHidesToken(t *testing.T) {
	tg := NewTelegramNotifier("secret-token", "1", nil)
	tg.BaseURL = "http://127.0.0.1:1"

	err := tg.Notify(context.Background(), Event{Message: "x"})
	if err == nil {
		t.Fatal("Expected connection error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Errorf("Error leaks token: %v", err)
	}
}

func TestTelegramNotifierTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tg := NewTelegramNotifier("t", "1", nil)
	tg.BaseURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := tg.Notify(ctx, Event{Message: "x"}); err == nil {
		t.Error("Expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Notify not bounded by context: %v", elapsed)
	}
}

func TestDesktopNotifier(t *testing.T) {
	var notified, alerted int
	d := &DesktopNotifier{
		AppName: "DeepWater",
		notify: func(title, message, icon string) error {
			notified++
			if title != "DeepWater" {
				t.Errorf("Expected app name as title, got %q", title)
			}
			return nil
		},
		alert: func(title, message, icon string) error {
			alerted++
			return nil
		},
	}

	if err := d.Notify(context.Background(), Event{Message: StrikeText, Type: TypeStrike}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if err := d.Notify(context.Background(), Event{Message: "boom", Type: TypeError}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if notified != 1 || alerted != 1 {
		t.Errorf("Expected 1 notify and 1 alert, got %d and %d", notified, alerted)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Notify(ctx, Event{Message: "late"}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestMulti(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("down")}

	m := Multi{ok, nil, failing}
	err := m.Notify(context.Background(), Event{Message: "x"})
	if err == nil {
		t.Error("Expected error from failing notifier")
	}
	if ok.count() != 1 || failing.count() != 1 {
		t.Errorf("Every notifier should receive the event: ok=%d failing=%d", ok.count(), failing.count())
	}
}

func TestDispatcherDoesNotBlock(t *testing.T) {
	slow := &recordingNotifier{delay: 200 * time.Millisecond}
	d := NewDispatcher(slow, time.Second, nil)

	start := time.Now()
	d.Dispatch(Event{Message: "x"})
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Dispatch blocked for %v", elapsed)
	}

	d.Wait()
	if slow.count() != 1 {
		t.Errorf("Expected delivery after Wait, got %d", slow.count())
	}
}

func TestDispatcherTimeoutIsLogged(t *testing.T) {
	slow := &recordingNotifier{delay: time.Second}
	sink := &recordingSink{}
	d := NewDispatcher(slow, 20*time.Millisecond, sink)

	d.Dispatch(Event{Message: "x"})
	d.Wait()

	if slow.count() != 0 {
		t.Errorf("Delivery should have been cut off by the timeout")
	}
	if !sink.contains("Notification failed") {
		t.Errorf("Expected failure to be logged")
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	var calls atomic.Int32
	sink := &recordingSink{}
	d := NewDispatcher(Func(func(ctx context.Context, e Event) error {
		calls.Add(1)
		panic("broken notifier")
	}), 0, sink)

	d.Dispatch(Event{Message: "x"})
	d.Wait()

	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
	if !sink.contains("Notification panic") {
		t.Errorf("Expected panic to be logged")
	}
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(Event{})
	d.Wait()

	NewDispatcher(nil, 0, nil).Dispatch(Event{})
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantNil  bool
		wantType string
	}{
		{"nothing enabled", Options{}, true, ""},
		{"telegram enabled without token", Options{TelegramEnabled: true}, true, ""},
		{"telegram disabled with token", Options{TelegramToken: "t"}, true, ""},
		{"telegram only", Options{TelegramEnabled: true, TelegramToken: "t"}, false, "telegram"},
		{"desktop only", Options{Desktop: true}, false, "desktop"},
		{"both", Options{TelegramEnabled: true, TelegramToken: "t", Desktop: true}, false, "multi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Build(tt.opts, nil)
			if tt.wantNil {
				if n != nil {
					t.Errorf("Expected nil notifier, got %T", n)
				}
				return
			}

			var got string
			switch n.(type) {
			case *TelegramNotifier:
				got = "telegram"
			case *DesktopNotifier:
				got = "desktop"
			case Multi:
				got = "multi"
			}
			if got != tt.wantType {
				t.Errorf("Expected %s, got %T", tt.wantType, n)
			}
		})
	}
}

func TestManagerSend(t *testing.T) {
	rec := &recordingNotifier{}
	nm := NewManager("DeepWater", rec)

	if err := nm.Send(context.Background(), nil); err == nil {
		t.Error("Expected error when sending nil notification")
	}

	helpers := []func(context.Context) error{
		nm.DeviceNotFound,
		nm.DetectorStopped,
		func(ctx context.Context) error { return nm.ModelNotFound(ctx, "fish_model_2features.json") },
		func(ctx context.Context) error { return nm.SendInfo(ctx, "hello") },
	}
	for _, h := range helpers {
		if err := h(context.Background()); err != nil {
			t.Errorf("Helper failed: %v", err)
		}
	}

	if rec.count() != len(helpers) {
		t.Fatalf("Expected %d events, got %d", len(helpers), rec.count())
	}
	for _, e := range rec.events {
		if e.Title != "DeepWater" {
			t.Errorf("Expected default title, got %q", e.Title)
		}
		if e.At.IsZero() {
			t.Errorf("Expected timestamp to be set")
		}
	}

	if err := NewManager("x", nil).SendInfo(context.Background(), "ignored"); err != nil {
		t.Errorf("Manager without notifier should be a no-op, got %v", err)
	}
}
