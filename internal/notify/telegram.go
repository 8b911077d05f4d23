package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram delivers transient reminders as Telegram messages. Delivery is
// best-effort: the caller is expected to log and move on when Notify fails.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates the channel for a single owner chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	return &Telegram{api: api, chatID: chatID}, nil
}

func (t *Telegram) Notify(userID int64, title, body string) error {
	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("<b>%s</b>\n\n%s", title, body))
	msg.ParseMode = "HTML"
	_, err := t.api.Send(msg)
	return err
}

// Log is the fallback channel used when no Telegram token is configured.
type Log struct{}

func (Log) Notify(userID int64, title, body string) error {
	log.Printf("Notification for user %d: %s: %s", userID, title, body)
	return nil
}
