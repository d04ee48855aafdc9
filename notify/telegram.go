// Package notify delivers best-effort run notifications. The only
// implemented sink is the Telegram bot API; a sink that is not fully
// configured degrades to a no-op rather than an error.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the Telegram bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

const sendTimeout = 30 * time.Second

// Telegram sends messages through the bot sendMessage method.
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	httpc    *http.Client
	logger   *logrus.Logger
}

// NewTelegram returns a notifier for the given bot and chat. Either
// value being empty disables the notifier.
func NewTelegram(botToken, chatID string, logger *logrus.Logger) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  DefaultBaseURL,
		httpc:    &http.Client{Timeout: sendTimeout},
		logger:   logger,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests and by
// deployments that reach Telegram through a relay.
func (t *Telegram) SetBaseURL(u string) {
	t.baseURL = u
}

// Enabled reports whether the notifier is fully configured.
func (t *Telegram) Enabled() bool {
	return t.botToken != "" && t.chatID != ""
}

// Notify sends the message, prefixed with a bold header naming the
// domain. It is best-effort: failures are logged and reported through
// the return value, never raised.
func (t *Telegram) Notify(ctx context.Context, domain, message string) bool {
	if !t.Enabled() {
		return false
	}

	header := "DDNS health report"
	if domain != "" {
		header = fmt.Sprintf("%s - %s", header, domain)
	}
	text := fmt.Sprintf("<b>%s</b>\n\n%s", header, message)

	params := url.Values{}
	params.Set("chat_id", t.chatID)
	params.Set("parse_mode", "HTML")
	params.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage?%s", t.baseURL, t.botToken, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		t.warn(err, "building telegram request")
		return false
	}

	resp, err := t.httpc.Do(req)
	if err != nil {
		t.warn(err, "sending telegram message")
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.warn(err, "reading telegram response")
		return false
	}

	var reply struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		t.warn(err, "decoding telegram response")
		return false
	}
	if !reply.OK {
		if t.logger != nil {
			t.logger.WithField("description", reply.Description).Warn("telegram rejected message")
		}
		return false
	}

	if t.logger != nil {
		t.logger.Debug("telegram notification delivered")
	}
	return true
}

func (t *Telegram) warn(err error, msg string) {
	if t.logger != nil {
		t.logger.WithError(err).Warn(msg)
	}
}
