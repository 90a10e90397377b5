package notification

import (
	"context"
	"fmt"
	"time"

	"grillbook/internal/events"
	"grillbook/internal/models"
	"grillbook/internal/timeutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the part of the bot API the announcer needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAnnouncer posts reservation changes to a community chat.
type TelegramAnnouncer struct {
	bot    TelegramSender
	chatID int64
	loc    *time.Location
}

func NewTelegramAnnouncer(bot TelegramSender, chatID int64, loc *time.Location) *TelegramAnnouncer {
	if loc == nil {
		loc = time.Local
	}
	return &TelegramAnnouncer{bot: bot, chatID: chatID, loc: loc}
}

// NewTelegramBot connects to the Bot API with token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (a *TelegramAnnouncer) Announce(_ context.Context, eventType string, r *models.Reservation) error {
	msg := tgbotapi.NewMessage(a.chatID, a.text(eventType, r))
	msg.DisableWebPagePreview = true
	if _, err := a.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (a *TelegramAnnouncer) text(eventType string, r *models.Reservation) string {
	start := r.StartTime.In(a.loc)
	end := r.EndTime.In(a.loc)
	when := fmt.Sprintf("%s, %s - %s", timeutil.FormatDate(start), timeutil.FormatTime(start), timeutil.FormatTime(end))

	switch eventType {
	case events.EventReservationCreated:
		return fmt.Sprintf("New grill reservation: %q by %s (%s)\n%s", r.Title, r.Name, r.ApartmentNumber, when)
	case events.EventReservationUpdated:
		return fmt.Sprintf("Grill reservation changed: %q by %s (%s)\n%s", r.Title, r.Name, r.ApartmentNumber, when)
	case events.EventReservationCancelled:
		return fmt.Sprintf("Grill reservation cancelled: %q\n%s\nThe grill is free again.", r.Title, when)
	default:
		return fmt.Sprintf("Grill reservation %q: %s", r.Title, when)
	}
}

// LogAnnouncer writes announcements to the log when no chat is configured.
type LogAnnouncer struct {
	logger *zerolog.Logger
}

func NewLogAnnouncer(logger *zerolog.Logger) *LogAnnouncer {
	return &LogAnnouncer{logger: logger}
}

func (a *LogAnnouncer) Announce(_ context.Context, eventType string, r *models.Reservation) error {
	a.logger.Info().
		Str("event", eventType).
		Str("reservation_id", r.ID).
		Time("start", r.StartTime).
		Msg("Reservation announcement")
	return nil
}
