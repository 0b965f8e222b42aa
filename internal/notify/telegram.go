package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxTelegramMessage = 4096

// Telegram delivers notices to a single chat. Send failures are logged and
// dropped; a notification sink must never fail the caller.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram creates a Telegram sink for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Info(title, message string) {
	t.send(title + "\n" + message)
}

func (t *Telegram) Success(message string) {
	t.send(message)
}

func (t *Telegram) Error(title, message string) {
	t.send("⚠️ " + title + "\n" + message)
}

func (t *Telegram) send(text string) {
	if len(text) > maxTelegramMessage {
		text = text[:maxTelegramMessage]
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		slog.Warn("telegram notification failed", "error", err)
	}
}
