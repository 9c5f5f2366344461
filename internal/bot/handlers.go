package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"inspection/internal/catalog"
	"inspection/internal/registration"
	"inspection/internal/session"
	"inspection/internal/storage"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage",
				zap.Any("panic", r),
				zap.Int64("user_id", message.From.ID),
			)
			msg := tgbotapi.NewMessage(message.Chat.ID, "⚠️ Ocorreu um erro inesperado. Tente novamente.")
			b.sendMessage(msg)
		}
	}()

	ctx := context.Background()

	// Handle commands
	if message.IsCommand() {
		switch message.Command() {
		case "start", "ajuda", "help":
			b.handleStart(message)
		case "registrar":
			b.handleRegister(ctx, message)
		case "cancelar":
			b.handleCancel(ctx, message)
		case "ver":
			b.handleView(ctx, message)
		case "relatorio":
			b.handleReport(ctx, message)
		default:
			msg := tgbotapi.NewMessage(message.Chat.ID, "Comando desconhecido. Use /ajuda para ver os comandos disponíveis.")
			b.sendMessage(msg)
		}
		return
	}

	if len(message.Photo) > 0 {
		b.handlePhoto(ctx, message)
		return
	}

	// Free text: repeat the pending question, if any
	if out, ok := b.machine.Current(message.From.ID); ok {
		b.respond(message.Chat.ID, 0, out, nil)
		return
	}
	msg := tgbotapi.NewMessage(message.Chat.ID, "Use /registrar para registrar uma foto ou /ajuda para ver os comandos.")
	b.sendMessage(msg)
}

// handlePhoto submits the largest size of the photo to the open registration
func (b *Bot) handlePhoto(ctx context.Context, message *tgbotapi.Message) {
	largest := message.Photo[len(message.Photo)-1]

	out, err := b.machine.Handle(ctx, registration.Event{
		Kind:        registration.EventPhoto,
		User:        submitter(message.From),
		ChatID:      message.Chat.ID,
		PhotoFileID: largest.FileID,
	})
	b.respond(message.Chat.ID, 0, out, err)
}

// respond reports an outcome to the user.
// A non-zero messageID edits that message in place, as button presses do.
func (b *Bot) respond(chatID int64, messageID int, out registration.Outcome, err error) {
	var text string
	switch {
	case err != nil:
		b.logger.Info("Registration event rejected", zap.Error(err), zap.Int64("chat_id", chatID))
		text = errorText(err, out.Prompt.Step != registration.StepNone)
		if out.Prompt.Step != registration.StepNone {
			text += "\n\n" + promptText(out.Prompt)
		}
	case out.Cancelled:
		text = "✖️ Registro cancelado."
	case out.Record != nil:
		text = committedText(out.Record, b.loc)
	default:
		text = promptText(out.Prompt)
	}

	keyboard := promptKeyboard(out.Prompt)

	if messageID != 0 {
		var edit tgbotapi.EditMessageTextConfig
		if keyboard != nil {
			edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
		} else {
			edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
		}
		b.sendMessage(edit)
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	b.sendMessage(msg)
}

// errorText translates a registration error for the user.
// pending tells whether the user is still inside a registration.
func errorText(err error, pending bool) string {
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		return "❌ Falha ao salvar o registro. Envie a foto novamente."
	case errors.Is(err, catalog.ErrNotFound):
		return "⚠️ Opção inválida."
	case errors.Is(err, session.ErrInvalidTransition) && pending:
		return "⚠️ Essa ação não é válida agora."
	case errors.Is(err, session.ErrInvalidTransition):
		return "⚠️ Essa ação não é válida agora. Use /registrar para começar um novo registro."
	}
	return "⚠️ Ocorreu um erro inesperado. Tente novamente."
}
