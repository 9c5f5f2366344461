package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"inspection/internal/catalog"
	"inspection/internal/models"
	"inspection/internal/query"
	"inspection/internal/registration"
	"inspection/internal/report"
	"inspection/internal/session"
)

const helpText = `📸 Bot de registro de inspeções

Comandos disponíveis:
/registrar - Registrar uma foto (corredor, sala, tipo e foto)
/cancelar - Cancelar o registro em andamento
/ver "Corredor" Sala Data - Ver os registros de uma sala
/relatorio [Data] - Receber a planilha do dia
/ajuda - Mostrar esta mensagem`

// handleStart shows welcome message and available commands
func (b *Bot) handleStart(message *tgbotapi.Message) {
	msg := tgbotapi.NewMessage(message.Chat.ID, helpText)
	b.sendMessage(msg)
}

// handleRegister starts a new registration, discarding any open one
func (b *Bot) handleRegister(ctx context.Context, message *tgbotapi.Message) {
	out, err := b.machine.Handle(ctx, registration.Event{
		Kind:   registration.EventBegin,
		User:   submitter(message.From),
		ChatID: message.Chat.ID,
	})
	b.respond(message.Chat.ID, 0, out, err)
}

// handleCancel drops the open registration
func (b *Bot) handleCancel(ctx context.Context, message *tgbotapi.Message) {
	out, err := b.machine.Handle(ctx, registration.Event{
		Kind:   registration.EventCancel,
		User:   submitter(message.From),
		ChatID: message.Chat.ID,
	})
	if errors.Is(err, session.ErrInvalidTransition) {
		b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, "Nenhum registro em andamento."))
		return
	}
	b.respond(message.Chat.ID, 0, out, err)
}

// handleView answers /ver "Corredor" Sala Data and re-sends the stored photos
func (b *Bot) handleView(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := query.SplitArgs(message.CommandArguments())

	result, err := b.resolver.Resolve(ctx, args...)
	switch {
	case errors.Is(err, query.ErrMalformedQuery):
		b.sendMessage(tgbotapi.NewMessage(chatID, query.Usage))
		return
	case errors.Is(err, catalog.ErrNotFound):
		text := "⚠️ Corredor ou sala não encontrado.\n\nCorredores:\n• " + strings.Join(b.catalog.Corridors(), "\n• ")
		b.sendMessage(tgbotapi.NewMessage(chatID, text))
		return
	case err != nil:
		b.logger.Error("Failed to resolve view request",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Strings("args", args),
		)
		b.sendMessage(tgbotapi.NewMessage(chatID, "❌ Ocorreu um erro ao recuperar os registros."))
		return
	}

	b.sendMessage(tgbotapi.NewMessage(chatID, result.Text(b.loc)))
	for _, t := range models.RecordTypes {
		if rec := result.Slots.Get(t); rec != nil {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(rec.PhotoFileID))
			photo.Caption = t.Label()
			b.sendMessage(photo)
		}
	}
}

// handleReport sends the spreadsheet of a day; today when no date is given
func (b *Bot) handleReport(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	date := strings.TrimSpace(message.CommandArguments())
	if date == "" {
		date = time.Now().In(b.loc).Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		b.sendMessage(tgbotapi.NewMessage(chatID, "⚠️ Use: /relatorio AAAA-MM-DD\nEx: /relatorio 2025-07-02"))
		return
	}

	var buf bytes.Buffer
	if err := report.Write(ctx, &buf, b.db, b.catalog, date, b.loc); err != nil {
		b.logger.Error("Failed to build report",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.String("date", date),
		)
		b.sendMessage(tgbotapi.NewMessage(chatID, "❌ Falha ao gerar o relatório."))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: report.Filename(date), Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("📊 Relatório de %s", date)
	b.sendMessage(doc)
}
