package pointer

import (
	"github.com/go-vgo/robotgo"

	"github.com/deepwater-app/deepwater/internal/logger"
)

// Button is the mouse button names robotgo understands
type Button string

const (
	// Left is the primary mouse button
	Left Button = "left"
	// Right is the secondary mouse button
	Right Button = "right"
)

// Robot presses and releases a mouse button through robotgo
// Failures are logged; callers treat actuation as fire-and-forget
type Robot struct {
	button Button
	log    logger.Sink
}

// NewRobot creates a pointer for the given button
func NewRobot(button Button, log logger.Sink) *Robot {
	if button == "" {
		button = Left
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Robot{button: button, log: log}
}

// Down presses the button
func (r *Robot) Down() {
	if err := robotgo.Toggle(string(r.button)); err != nil {
		r.log.Warn("Pointer down failed: %v", err)
	}
}

// Up releases the button
func (r *Robot) Up() {
	if err := robotgo.Toggle(string(r.button), "up"); err != nil {
		r.log.Warn("Pointer up failed: %v", err)
	}
}
