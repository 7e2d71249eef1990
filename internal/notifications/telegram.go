package notifications

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
)

type TelegramNotifier struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		// The timeout bounds how long a trading loop can stall on a
		// notification.
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *TelegramNotifier) Notify(severity Severity, message string) error {
	emoji := "ℹ️"
	switch severity {
	case SeverityCrucial:
		emoji = "⚠️"
	case SeverityError:
		emoji = "🚨"
	}

	text := fmt.Sprintf("%s *Strangle Bot Alert*\n\n%s", emoji, message)

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", text)
	data.Set("parse_mode", "Markdown")

	resp, err := t.client.Post(apiURL, "application/x-www-form-urlencoded",
		strings.NewReader(data.Encode()))
	if err != nil {
		return traderrors.Wrap(err, traderrors.ErrorCategoryNotification, "notifications", "send",
			"telegram request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return traderrors.Newf(traderrors.ErrorCategoryNotification, "notifications", "send",
			"telegram API returned status %d", resp.StatusCode)
	}

	return nil
}
