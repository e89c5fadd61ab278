package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts the reminder to a single chat.
type Telegram struct {
	sender telegramSender
	chatID int64
}

// NewTelegram authenticates the bot token against the Bot API.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram channel needs a bot token and chat id")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{sender: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Deliver(ctx context.Context, r Reminder) error {
	msg := tgbotapi.NewMessage(t.chatID, "⏰ "+r.Toast())
	return blocking(ctx, func() error {
		if _, err := t.sender.Send(msg); err != nil {
			return fmt.Errorf("telegram sendMessage failed: %w", err)
		}
		return nil
	})
}
