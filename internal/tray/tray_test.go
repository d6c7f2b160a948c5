package tray

import (
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	startCalled := false
	stopCalled := false
	toggleCalled := false
	quitCalled := false

	manager := NewManager(Config{
		OnStart:  func() { startCalled = true },
		OnStop:   func() { stopCalled = true },
		OnToggle: func() { toggleCalled = true },
		OnQuit:   func() { quitCalled = true },
	})

	if manager == nil {
		t.Fatal("Expected manager to be created")
	}
	if manager.State() != StateStopped {
		t.Errorf("Expected initial state to be StateStopped, got %v", manager.State())
	}
	if manager.appName != "DeepWater" {
		t.Errorf("Expected default app name, got %q", manager.appName)
	}
	if manager.settings {
		t.Error("Settings item should be disabled without OnSettings")
	}

	call(manager.onStart)
	call(manager.onStop)
	call(manager.onToggle)
	call(manager.onQuit)
	if !startCalled || !stopCalled || !toggleCalled || !quitCalled {
		t.Error("Expected all callbacks to be called")
	}
}

func TestCallbacksNil(t *testing.T) {
	manager := NewManager(Config{})

	// None of these may panic
	call(manager.onStart)
	call(manager.onStop)
	call(manager.onToggle)
	call(manager.onSettings)
	call(manager.onQuit)
}

func TestStateFor(t *testing.T) {
	tests := []struct {
		running  bool
		autoCast bool
		want     State
	}{
		{false, false, StateStopped},
		{false, true, StateStopped},
		{true, false, StateListening},
		{true, true, StateAutoCast},
	}

	for _, tt := range tests {
		if got := StateFor(tt.running, tt.autoCast); got != tt.want {
			t.Errorf("StateFor(%v, %v) = %v, want %v", tt.running, tt.autoCast, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateStopped.String() != "stopped" || StateListening.String() != "listening" || StateAutoCast.String() != "auto cast" {
		t.Error("Unexpected state names")
	}
	if State(42).String() != "unknown" {
		t.Error("Expected unknown for out-of-range state")
	}
}

func TestSetStatusBeforeReady(t *testing.T) {
	manager := NewManager(Config{AppName: "Test"})

	// Not ready, so only the stored state changes
	manager.SetStatus(true, true, 3)
	if manager.State() != StateAutoCast {
		t.Errorf("Expected StateAutoCast, got %v", manager.State())
	}
	if got := manager.tooltip(); got != "Test - auto cast" {
		t.Errorf("Unexpected tooltip %q", got)
	}
	if got := manager.statusLine(); got != "Listening, 3 strikes" {
		t.Errorf("Unexpected status line %q", got)
	}

	manager.SetStatus(false, true, 3)
	if got := manager.statusLine(); got != "Detector stopped" {
		t.Errorf("Unexpected status line %q", got)
	}
}

func TestUpdateDeviceMenuBeforeReady(t *testing.T) {
	manager := NewManager(Config{})

	manager.UpdateDeviceMenu([]Device{{ID: 1, Name: "CABLE Output"}})
	if len(manager.deviceMenuItems) != 0 {
		t.Error("Expected no menu items before the tray is ready")
	}
}

func TestDeviceLabel(t *testing.T) {
	if got := deviceLabel(Device{Name: "Mic"}); got != "Mic" {
		t.Errorf("Unexpected label %q", got)
	}
	if got := deviceLabel(Device{Name: "Mic", IsCurrent: true}); got != "✓ Mic" {
		t.Errorf("Unexpected label %q", got)
	}
}

func TestIconFallbacks(t *testing.T) {
	stopped := stoppedFallback()
	listening := listeningFallback()
	autoCast := autoCastFallback()

	if len(stopped) == 0 || len(listening) == 0 || len(autoCast) == 0 {
		t.Fatal("Expected non-empty fallback icons")
	}
	if string(stopped) == string(listening) || string(stopped) == string(autoCast) || string(listening) == string(autoCast) {
		t.Error("Expected distinct fallback icons")
	}

	manager := NewManager(Config{})
	for _, s := range []State{StateStopped, StateListening, StateAutoCast} {
		if len(manager.icons[s]) == 0 {
			t.Errorf("No icon cached for %v", s)
		}
	}
}

func TestConcurrentStatusUpdates(t *testing.T) {
	manager := NewManager(Config{})

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(i int) {
			manager.SetStatus(true, false, i)
			time.Sleep(time.Millisecond)
			manager.SetStatus(true, true, i)
			time.Sleep(time.Millisecond)
			manager.SetStatus(false, false, i)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if manager.State() != StateStopped {
		t.Errorf("Expected StateStopped, got %v", manager.State())
	}
}
