package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"inspection/internal/models"
	"inspection/internal/registration"
)

const roomsPerRow = 3

// promptText describes the selections made so far and asks for the next one
func promptText(p registration.Prompt) string {
	var text strings.Builder
	if p.Corridor != "" {
		fmt.Fprintf(&text, "📍 Corredor: %s\n", p.Corridor)
	}
	if p.Room != "" {
		fmt.Fprintf(&text, "🔢 Sala: %s\n", p.Room)
	}
	if p.Type != "" {
		fmt.Fprintf(&text, "🕒 Tipo: %s\n", p.Type.Label())
	}

	switch p.Step {
	case registration.StepCorridor:
		text.WriteString("📍 Escolha o Corredor:")
	case registration.StepRoom:
		text.WriteString("🔢 Escolha a Sala:")
	case registration.StepType:
		text.WriteString("🕒 Escolha o Tipo:")
	case registration.StepPhoto:
		text.WriteString("📸 Envie a foto agora.")
	}
	return text.String()
}

// committedText confirms a stored record
func committedText(rec *models.Record, loc *time.Location) string {
	return fmt.Sprintf("✅ Foto registrada!\n📍 %s\n🔢 %s\n🕒 %s\n📆 %s",
		rec.Corridor, rec.Room, rec.Type.Label(), rec.CommittedAt.In(loc).Format("2006-01-02 15:04"))
}

// promptKeyboard returns the buttons of a step, or nil when the step takes no button
func promptKeyboard(p registration.Prompt) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	switch p.Step {
	case registration.StepCorridor:
		for _, corridor := range p.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(corridor, callbackData(callbackCorridor, corridor)),
			))
		}
	case registration.StepRoom:
		// Rooms are laid out in rows of roomsPerRow buttons
		var currentRow []tgbotapi.InlineKeyboardButton
		for i, room := range p.Options {
			currentRow = append(currentRow, tgbotapi.NewInlineKeyboardButtonData(room, callbackData(callbackRoom, room)))
			if len(currentRow) == roomsPerRow || i == len(p.Options)-1 {
				rows = append(rows, currentRow)
				currentRow = nil
			}
		}
	case registration.StepType:
		var row []tgbotapi.InlineKeyboardButton
		for _, opt := range p.Options {
			t := models.RecordType(opt)
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(t.Label(), callbackData(callbackType, opt)))
		}
		rows = append(rows, row)
	case registration.StepPhoto:
	default:
		return nil
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancelar", callbackData(callbackCancel, "")),
	))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}
