package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

// TelegramNotifier posts events to an operations channel. Sends happen on
// their own goroutine so a slow Telegram API never blocks a state
// transition.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier initializes the bot client for the given channel.
func NewTelegramNotifier(token string, chatID int64, debug bool) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token not provided")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initializing Telegram Bot API: %w", err)
	}
	api.Debug = debug
	log.Printf("Telegram notifier authorized as %s", api.Self.UserName)
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

func (t *TelegramNotifier) Notify(e Event) {
	text := fmt.Sprintf("[%s] %s", e.Kind, e.Text)
	if e.RequestID != "" {
		text += fmt.Sprintf("\nDossier: %s", e.RequestID)
	}
	go func() {
		msg := tgbotapi.NewMessage(t.chatID, text)
		if _, err := t.api.Send(msg); err != nil {
			// Delivery failures are logged and dropped, never propagated.
			log.Printf("TelegramNotifier: send failed for event %s: %v", e.Kind, err)
		}
	}()
}
