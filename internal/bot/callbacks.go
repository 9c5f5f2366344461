package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"inspection/internal/models"
	"inspection/internal/registration"
)

// Callback kinds, encoded as "<kind>:<value>" in the button data
const (
	callbackCorridor = "corridor"
	callbackRoom     = "room"
	callbackType     = "type"
	callbackCancel   = "cancel"
)

var errUnknownCallback = errors.New("unknown callback")

func callbackData(kind, value string) string {
	return kind + ":" + value
}

// decodeCallback turns button data into a registration event without user fields
func decodeCallback(data string) (registration.Event, error) {
	kind, value, _ := strings.Cut(data, ":")

	switch kind {
	case callbackCorridor:
		return registration.Event{Kind: registration.EventCorridorPick, Corridor: value}, nil
	case callbackRoom:
		return registration.Event{Kind: registration.EventRoomPick, Room: value}, nil
	case callbackType:
		t, err := models.ParseRecordType(value)
		if err != nil {
			return registration.Event{}, fmt.Errorf("%w: %w", errUnknownCallback, err)
		}
		return registration.Event{Kind: registration.EventTypePick, Type: t}, nil
	case callbackCancel:
		return registration.Event{Kind: registration.EventCancel}, nil
	}
	return registration.Event{}, fmt.Errorf("%w: %q", errUnknownCallback, data)
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery",
				zap.Any("panic", r),
				zap.String("callback_data", query.Data),
			)
		}
	}()

	// Answer the callback query to remove loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Debug("Failed to answer callback query", zap.Error(err))
	}

	if query.Message == nil {
		return
	}

	ev, err := decodeCallback(query.Data)
	if err != nil {
		b.logger.Warn("Ignoring callback", zap.Error(err), zap.Int64("user_id", query.From.ID))
		return
	}
	ev.User = submitter(query.From)
	ev.ChatID = query.Message.Chat.ID

	out, err := b.machine.Handle(context.Background(), ev)
	b.respond(query.Message.Chat.ID, query.Message.MessageID, out, err)
}

func submitter(u *tgbotapi.User) models.Submitter {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return models.Submitter{ID: u.ID, Name: name}
}
