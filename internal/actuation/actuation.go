package actuation

import (
	"context"
	"sync"
	"time"

	"github.com/deepwater-app/deepwater/internal/logger"
)

// State represents the cast cycle state
type State int

const (
	// Disabled means no controller goroutine is running
	Disabled State = iota
	// Casting means the pointer is being pressed
	Casting
	// WaitingForStrike means the pointer is held until a strike or disable
	WaitingForStrike
	// Releasing means the pointer is being released
	Releasing
	// Cooldown means waiting for the next cast
	Cooldown
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case Casting:
		return "Casting"
	case WaitingForStrike:
		return "WaitingForStrike"
	case Releasing:
		return "Releasing"
	case Cooldown:
		return "Cooldown"
	default:
		return "Unknown"
	}
}

// Pointer performs the held-then-released actuation
type Pointer interface {
	Down()
	Up()
}

// StrikeWaiter is the receiving side of the strike signal. *detector.Signal implements it
type StrikeWaiter interface {
	Wait(timeout time.Duration) bool
	Reset()
}

// Config holds cast cycle timing
type Config struct {
	WaitTimeout   time.Duration // bounded wait on the strike signal
	CooldownTicks int           // number of cooldown ticks after a release
	CooldownTick  time.Duration // length of one cooldown tick
}

// DefaultConfig returns the default timing: 100ms waits and a 6 x 1s cooldown
func DefaultConfig() Config {
	return Config{
		WaitTimeout:   100 * time.Millisecond,
		CooldownTicks: 6,
		CooldownTick:  time.Second,
	}
}

// Controller drives the cast cycle while enabled. At most one cycle
// goroutine exists at a time; it is the only waiter on the strike signal
type Controller struct {
	config  Config
	pointer Pointer
	signal  StrikeWaiter
	log     logger.Sink

	notifyMu sync.Mutex // orders observer calls across cycle goroutines

	mu      sync.Mutex
	enabled bool
	active  bool
	ctx     context.Context
	state   State
	done    chan struct{}
	wake    chan struct{} // interrupts a cooldown tick on Disable
	onState func(State)
}

// New creates a disabled controller
func New(config Config, pointer Pointer, signal StrikeWaiter, log logger.Sink) *Controller {
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 100 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Controller{
		config:  config,
		pointer: pointer,
		signal:  signal,
		log:     log,
		ctx:     context.Background(),
		state:   Disabled,
		wake:    make(chan struct{}, 1),
	}
}

// OnState sets an observer for state transitions. Call before Enable
func (c *Controller) OnState(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Enable turns auto casting on. A cycle goroutine is spawned only if none is
// running; a goroutine still finishing a disabled cycle picks the flag up
// again instead. Cancelling ctx ends the cycle like Disable
func (c *Controller) Enable(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = true
	c.ctx = ctx
	select {
	case <-c.wake:
	default:
	}
	if c.active {
		return
	}

	c.active = true
	c.done = make(chan struct{})
	go c.run(c.done)
	c.log.Info("Auto casting ENABLED")
}

// Disable asks the running cycle to release and stop. It does not wait
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled {
		c.enabled = false
		c.log.Info("Auto casting DISABLED")
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// Toggle flips the enabled flag and returns the new value
func (c *Controller) Toggle(ctx context.Context) bool {
	c.mu.Lock()
	enabled := c.enabled
	c.mu.Unlock()

	if enabled {
		c.Disable()
		return false
	}
	c.Enable(ctx)
	return true
}

// Enabled reports whether auto casting is on
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// State returns the current cycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until the cycle goroutine has exited or timeout elapses,
// and reports whether it exited
func (c *Controller) Wait(timeout time.Duration) bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

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

// shouldRun reports whether the current cycle may continue
func (c *Controller) shouldRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.ctx.Err() == nil
}

func (c *Controller) setState(s State) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

// notifyExit reports Disabled for an exiting cycle unless a concurrent Enable
// already started the next one
func (c *Controller) notifyExit() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	restarted := c.active
	fn := c.onState
	c.mu.Unlock()

	if fn != nil && !restarted {
		fn(Disabled)
	}
}

// finishCycle decides under the lock whether to cast again or exit, so a
// concurrent Enable either sees active=false and spawns, or is picked up here
func (c *Controller) finishCycle() bool {
	c.mu.Lock()
	if c.enabled && c.ctx.Err() == nil {
		c.mu.Unlock()
		return true
	}
	c.active = false
	c.state = Disabled
	c.mu.Unlock()
	return false
}

// run executes cast cycles until disabled or the context ends
func (c *Controller) run(done chan struct{}) {
	c.log.Debug("Cast cycle loop started")
	defer close(done)

	held, exited := false, false
	defer func() {
		// Never leave the pointer held, even if a collaborator panicked
		if r := recover(); r != nil {
			c.log.Error("Cast cycle panic: %v", r)
			if held {
				c.pointer.Up()
			}
			if exited {
				return
			}
			c.mu.Lock()
			c.active = false
			c.enabled = false
			c.state = Disabled
			c.mu.Unlock()
		}
	}()

	for {
		c.setState(Casting)
		c.signal.Reset()
		held = true
		c.pointer.Down()

		c.setState(WaitingForStrike)
		for c.shouldRun() {
			if c.signal.Wait(c.config.WaitTimeout) {
				c.log.Info("Strike received, reeling in")
				break
			}
		}

		c.setState(Releasing)
		c.pointer.Up()
		held = false

		c.setState(Cooldown)
		c.cooldown()

		if !c.finishCycle() {
			exited = true
			c.log.Debug("Cast cycle loop stopped")
			c.notifyExit()
			return
		}
	}
}

// cooldown waits CooldownTicks ticks, checking for disable between ticks
// Disable also cuts the current tick short
func (c *Controller) cooldown() {
	for i := 0; i < c.config.CooldownTicks; i++ {
		if !c.shouldRun() {
			return
		}

		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()

		timer := time.NewTimer(c.config.CooldownTick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}
