package notification

import "github.com/deepwater-app/deepwater/internal/logger"

// Options selects the delivery channels
type Options struct {
	AppName         string
	TelegramEnabled bool
	TelegramToken   string
	TelegramChatID  string
	Desktop         bool
}

// Build returns the notifier for opts, or nil when no channel is active
// Telegram is included only when enabled with a non-empty token
func Build(opts Options, log logger.Sink) Notifier {
	var m Multi
	if opts.TelegramEnabled && opts.TelegramToken != "" {
		m = append(m, NewTelegramNotifier(opts.TelegramToken, opts.TelegramChatID, log))
	}
	if opts.Desktop {
		m = append(m, NewDesktopNotifier(opts.AppName))
	}

	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}
