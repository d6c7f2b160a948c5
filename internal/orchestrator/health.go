package orchestrator

import (
	"context"
	"time"
)

// HealthInterval is how often Monitor checks the detection loop
const HealthInterval = time.Second

// Status is a point-in-time view for the UI
type Status struct {
	State      string     `json:"state"`
	Running    bool       `json:"running"`
	Alive      bool       `json:"alive"`
	AutoCast   bool       `json:"auto_cast"`
	Actuation  string     `json:"actuation"`
	Strikes    uint64     `json:"strikes"`
	LastStrike *time.Time `json:"last_strike,omitempty"`
	Device     string     `json:"device,omitempty"`
	Hotkey     string     `json:"hotkey,omitempty"`
}

// Status returns the current status
func (o *Orchestrator) Status() Status {
	st := Status{
		State:     o.State().String(),
		Running:   o.IsRunning(),
		AutoCast:  o.controller.Enabled(),
		Actuation: o.controller.State().String(),
	}

	o.mu.Lock()
	s := o.session
	if o.binding != nil {
		st.Hotkey = o.boundLabel
	}
	o.mu.Unlock()

	if s != nil {
		st.Alive = s.detector.Alive()
		st.Strikes = s.detector.Strikes()
		st.Device = s.stream.Device().Name
		if at, ok := s.detector.LastDetection(); ok {
			st.LastStrike = &at
		}
	}
	return st
}

// CheckHealth stops the orchestrator if it is running but the detection
// loop has exited, and reports whether it is healthy
func (o *Orchestrator) CheckHealth() bool {
	if !o.IsRunning() || o.Alive() {
		return true
	}
	o.log.Error("Detection loop exited unexpectedly")
	o.Stop()
	return false
}

// Monitor runs CheckHealth every interval until ctx is done. onChange is
// called with the running flag whenever it changes, starting from stopped,
// including abnormal termination
func (o *Orchestrator) Monitor(ctx context.Context, interval time.Duration, onChange func(running bool)) {
	if interval <= 0 {
		interval = HealthInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.CheckHealth()
			if running := o.IsRunning(); running != last {
				last = running
				if onChange != nil {
					onChange(running)
				}
			}
		}
	}
}
