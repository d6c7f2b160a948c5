package hotkey

import (
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

// DefaultLabel is the toggle hotkey used when none is configured
const DefaultLabel = "F11"

// Handle is a registered hotkey
type Handle interface {
	// Unregister releases the hotkey. No new callback starts after it
	// returns; a press already being dispatched may still complete. It
	// does not wait for the callback, so it may be called from one
	// Safe to call more than once
	Unregister() error
}

// Registrar registers global hotkeys
type Registrar interface {
	Register(label string, onFire func()) (Handle, error)
}

// Manager registers global hotkeys through golang.design/x/hotkey
// Each registration runs its own listener goroutine
type Manager struct {
	mu       sync.Mutex
	bindings map[*registration]struct{}
}

// New creates a new hotkey manager
func New() *Manager {
	return &Manager{bindings: make(map[*registration]struct{})}
}

// registration is one live hotkey and its listener
type registration struct {
	manager  *Manager
	hk       *hotkey.Hotkey
	label    string
	onFire   func()
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	err      error
}

// Register parses label, registers it with the system and calls onFire on
// every key press
func (m *Manager) Register(label string, onFire func()) (Handle, error) {
	b, err := ParseLabel(label)
	if err != nil {
		return nil, err
	}

	// Create hotkey instance
	hk := hotkey.New(b.Modifiers, b.Key)

	// Register the hotkey
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("failed to register hotkey %s: %w", b, err)
	}

	r := &registration{
		manager:  m,
		hk:       hk,
		label:    b.String(),
		onFire:   onFire,
		stopChan: make(chan struct{}),
	}

	m.mu.Lock()
	m.bindings[r] = struct{}{}
	m.mu.Unlock()

	// Start listening in a goroutine
	r.wg.Add(1)
	go r.listen()

	return r, nil
}

// listen monitors key presses. Key releases are drained and ignored
func (r *registration) listen() {
	defer r.wg.Done()

	for {
		select {
		case <-r.hk.Keydown():
			select {
			case <-r.stopChan:
				return
			default:
			}
			if r.onFire != nil {
				r.onFire()
			}

		case <-r.hk.Keyup():

		case <-r.stopChan:
			return
		}
	}
}

// Unregister stops the listener and unregisters the hotkey
func (r *registration) Unregister() error {
	r.once.Do(func() {
		// Signal the listener to stop
		close(r.stopChan)

		if err := r.hk.Unregister(); err != nil {
			r.err = fmt.Errorf("failed to unregister hotkey %s: %w", r.label, err)
		}

		r.manager.mu.Lock()
		delete(r.manager.bindings, r)
		r.manager.mu.Unlock()
	})
	return r.err
}

// String returns the canonical label of the registration
func (r *registration) String() string {
	return r.label
}

// Active returns the number of live registrations
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bindings)
}

// Close unregisters every live hotkey and waits for the listeners to
// exit. The first error is returned. Must not be called from a callback
func (m *Manager) Close() error {
	m.mu.Lock()
	regs := make([]*registration, 0, len(m.bindings))
	for r := range m.bindings {
		regs = append(regs, r)
	}
	m.mu.Unlock()

	var firstErr error
	for _, r := range regs {
		if err := r.Unregister(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.wg.Wait()
	}
	return firstErr
}
