package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeWarning is a warning notification
	TypeWarning NotificationType = "warning"
	// TypeError is an error notification
	TypeError NotificationType = "error"
	// TypeSuccess is a success notification
	TypeSuccess NotificationType = "success"
	// TypeStrike reports an accepted detection
	TypeStrike NotificationType = "strike"
)

// StrikeText is the message sent for every accepted strike
const StrikeText = "🎣 Fish caught!"

// Event is one message for the user
type Event struct {
	Title    string
	Message  string
	Type     NotificationType
	StrikeID uuid.UUID
	At       time.Time
}

// StrikeEvent builds the notification for an accepted strike
func StrikeEvent(appName string, id uuid.UUID, at time.Time) Event {
	return Event{
		Title:    appName,
		Message:  StrikeText,
		Type:     TypeStrike,
		StrikeID: id,
		At:       at,
	}
}

// Notifier delivers events to one channel
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Func adapts a function to Notifier
type Func func(ctx context.Context, e Event) error

// Notify calls f
func (f Func) Notify(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Multi delivers an event to every notifier concurrently. A failing
// channel does not cancel the others; the first error is returned
type Multi []Notifier

// Notify fans e out to all notifiers and waits for them
func (m Multi) Notify(ctx context.Context, e Event) error {
	var g errgroup.Group
	for _, n := range m {
		if n == nil {
			continue
		}
		g.Go(func() error {
			return n.Notify(ctx, e)
		})
	}
	return g.Wait()
}

// Manager sends application notifications through a Notifier
type Manager struct {
	appName  string
	notifier Notifier
}

// NewManager creates a new notification manager
func NewManager(appName string, notifier Notifier) *Manager {
	return &Manager{
		appName:  appName,
		notifier: notifier,
	}
}

// Send sends a notification synchronously
func (nm *Manager) Send(ctx context.Context, notification *Event) error {
	if notification == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	if nm.notifier == nil {
		return nil
	}
	if notification.Title == "" {
		notification.Title = nm.appName
	}
	if notification.At.IsZero() {
		notification.At = time.Now()
	}

	if err := nm.notifier.Notify(ctx, *notification); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// SendInfo sends an informational notification
func (nm *Manager) SendInfo(ctx context.Context, message string) error {
	return nm.Send(ctx, &Event{Message: message, Type: TypeInfo})
}

// SendError sends an error notification
func (nm *Manager) SendError(ctx context.Context, message string) error {
	return nm.Send(ctx, &Event{Message: message, Type: TypeError})
}

// DeviceNotFound sends a notification that no capture device could be opened
func (nm *Manager) DeviceNotFound(ctx context.Context) error {
	return nm.SendError(ctx, "No audio capture device found. Check the loopback device and try again.")
}

// ModelNotFound sends a notification that the classifier model could not be loaded
func (nm *Manager) ModelNotFound(ctx context.Context, modelPath string) error {
	return nm.SendError(ctx, fmt.Sprintf("Classifier model could not be loaded: %s", modelPath))
}

// DetectorStopped sends a notification that detection ended unexpectedly
func (nm *Manager) DetectorStopped(ctx context.Context) error {
	return nm.Send(ctx, &Event{Message: "Detection stopped unexpectedly.", Type: TypeWarning})
}
