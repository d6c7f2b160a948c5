package notification

import (
	"context"
	"sync"
	"time"

	"github.com/deepwater-app/deepwater/internal/logger"
)

// DefaultTimeout bounds one delivery
const DefaultTimeout = 3 * time.Second

// Dispatcher delivers events in the background so callers never block on
// the network. Failures are logged and dropped
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      logger.Sink
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A non-positive timeout selects
// DefaultTimeout
func NewDispatcher(notifier Notifier, timeout time.Duration, log logger.Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		log:      log,
	}
}

// Dispatch starts delivery of e and returns immediately
func (d *Dispatcher) Dispatch(e Event) {
	if d == nil || d.notifier == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Notification panic: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, e); err != nil {
			d.log.Warn("Notification failed: %v", err)
		}
	}()
}

// Wait blocks until every dispatched delivery has finished
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
