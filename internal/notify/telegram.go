// Package notify delivers operator alerts to a Telegram chat.
package notify

import (
	"context"
	"fmt"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	bot    Sender
	chatID int64
	logger zerolog.Logger
}

// NewTelegram authenticates the bot token. It returns nil when Telegram is
// not configured.
func NewTelegram(cfg config.NotifyConfig, logger zerolog.Logger) (*TelegramNotifier, error) {
	if cfg.BotToken == "" || cfg.AdminChatID == 0 {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize telegram bot: %w", err)
	}
	bot.Debug = false

	logger.Info().Str("username", bot.Self.UserName).Msg("telegram notifier authorized")

	return NewTelegramWithSender(bot, cfg.AdminChatID, logger), nil
}

func NewTelegramWithSender(bot Sender, chatID int64, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}
}

// Notify sends text to the admin chat.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn().Err(err).Int64("chat_id", n.chatID).Msg("telegram notification failed")
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	return nil
}
