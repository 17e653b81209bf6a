// Package alert pushes operator notifications when a queued submission
// keeps failing. The daemon never gives up on a record, so a human has
// to hear about the ones that refuse to go through.
package alert

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/models"
)

// TelegramAlerter sends stuck-delivery notices to a Telegram chat.
// A nil *TelegramAlerter is valid and does nothing, so callers can wire
// it unconditionally and leave the token unset.
type TelegramAlerter struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

func NewTelegram(token string, chatID int64, logger *zerolog.Logger) (*TelegramAlerter, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "alerter").Logger()
	}
	l.Info().Str("bot", botAPI.Self.UserName).Msg("telegram alerter ready")
	return &TelegramAlerter{bot: botAPI, chatID: chatID, logger: l}, nil
}

// DeliveryStuck notifies the operator that a record crossed the failure
// threshold. Errors are logged and swallowed: alerting must never break
// the drain.
func (a *TelegramAlerter) DeliveryStuck(_ context.Context, record *models.QueueRecord) {
	if a == nil {
		return
	}
	msg := tgbotapi.NewMessage(a.chatID, formatStuckMessage(record))
	msg.ParseMode = "Markdown"
	if _, err := a.bot.Send(msg); err != nil {
		a.logger.Error().Err(err).Str("queue_id", record.ID).Msg("telegram alert failed")
	}
}

func formatStuckMessage(record *models.QueueRecord) string {
	return fmt.Sprintf(
		"⚠️ *Submission stuck*\n\nKind: %s\nQueue ID: `%s`\nAttempts: %d\nLast status: %d\nLast error: %s\nQueued at: %s",
		record.Kind,
		record.ID,
		record.Attempts,
		record.LastStatus,
		record.LastError,
		record.CreatedAt.Format("2006-01-02 15:04:05"),
	)
}
