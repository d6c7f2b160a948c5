package notification

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"
)

// DesktopNotifier shows events as OS notifications
type DesktopNotifier struct {
	AppName string
	Icon    string

	notify func(title, message, icon string) error
	alert  func(title, message, icon string) error
}

// NewDesktopNotifier creates a desktop notifier backed by beeep
func NewDesktopNotifier(appName string) *DesktopNotifier {
	return &DesktopNotifier{
		AppName: appName,
		notify: func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		},
		alert: func(title, message, icon string) error {
			return beeep.Alert(title, message, icon)
		},
	}
}

// Notify shows e. Errors and warnings are shown as alerts
func (d *DesktopNotifier) Notify(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	title := e.Title
	if title == "" {
		title = d.AppName
	}

	send := d.notify
	if e.Type == TypeError || e.Type == TypeWarning {
		send = d.alert
	}
	if send == nil {
		return ErrNotConfigured
	}

	if err := send(title, e.Message, d.Icon); err != nil {
		return fmt.Errorf("desktop notification failed: %w", err)
	}
	return nil
}
