package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/deepwater-app/deepwater/internal/logger"
)

// TelegramAPI is the Bot API base URL
const TelegramAPI = "https://api.telegram.org"

// ErrNotConfigured is returned when a channel lacks credentials
var ErrNotConfigured = errors.New("notifier not configured")

// TelegramNotifier sends one text message per event through the Bot API
type TelegramNotifier struct {
	Token   string
	ChatID  string
	BaseURL string
	Client  *http.Client

	log logger.Sink
}

// NewTelegramNotifier creates a Telegram notifier. The client timeout is
// DefaultTimeout; callers may bound further through ctx
func NewTelegramNotifier(token, chatID string, log logger.Sink) *TelegramNotifier {
	if log == nil {
		log = logger.Nop{}
	}
	return &TelegramNotifier{
		Token:   token,
		ChatID:  chatID,
		BaseURL: TelegramAPI,
		Client:  &http.Client{Timeout: DefaultTimeout},
		log:     log,
	}
}

// Notify sends e.Message via sendMessage
func (t *TelegramNotifier) Notify(ctx context.Context, e Event) error {
	if t.Token == "" {
		return ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.Token)
	query := url.Values{}
	query.Set("chat_id", t.ChatID)
	query.Set("text", e.Message)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		// The URL carries the token; report only the cause
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	t.log.Info("Telegram notification sent")
	return nil
}
