package chatbot

import (
	"context"

	"github.com/evvec/ps-tracker/external/telegram"
)

// BotAPI is the slice of the Telegram client the chatbot layer uses.
type BotAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendMessageOptions) (int64, error)
	RemoveReplyMarkup(ctx context.Context, chatID, messageID int64) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
}

// TelegramMessenger adapts the Telegram client to the workflow's
// messenger port. Prompts carry the inline cancel button, plain replies
// do not.
type TelegramMessenger struct {
	bot BotAPI
}

func NewTelegramMessenger(bot BotAPI) *TelegramMessenger {
	return &TelegramMessenger{bot: bot}
}

func (m *TelegramMessenger) SendPrompt(ctx context.Context, chatID int64, text string) (int64, error) {
	return m.bot.SendMessage(ctx, chatID, text, telegram.SendMessageOptions{
		WithCancelButton: true,
	})
}

func (m *TelegramMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := m.bot.SendMessage(ctx, chatID, text, telegram.SendMessageOptions{})
	return err
}

func (m *TelegramMessenger) RetractAffordance(ctx context.Context, chatID, messageID int64) error {
	return m.bot.RemoveReplyMarkup(ctx, chatID, messageID)
}
