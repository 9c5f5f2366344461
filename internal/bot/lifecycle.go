package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// WebhookPath is where Telegram delivers updates in webhook mode
const WebhookPath = "/telegram-webhook"

const deniedText = "Desculpe, você não tem permissão para usar este bot."

// Start polls Telegram for updates and handles them one at a time.
// It blocks until Stop closes the updates channel.
func (b *Bot) Start() error {
	// A webhook left over from a previous deployment would swallow the updates
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	b.logger.Info("Polling for updates")
	b.handleUpdates(b.api.GetUpdatesChan(u))
	b.logger.Info("Polling stopped")
	return nil
}

// Stop ends polling
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

// StartWebhook registers baseURL+WebhookPath with Telegram
func (b *Bot) StartWebhook(baseURL string) error {
	webhookConfig, err := tgbotapi.NewWebhook(baseURL + WebhookPath)
	if err != nil {
		return err
	}
	// One connection at a time makes Telegram deliver updates in order
	webhookConfig.MaxConnections = 1

	if _, err := b.api.Request(webhookConfig); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", baseURL))
		return err
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
		return nil
	}
	b.logger.Info("Webhook registered",
		zap.String("url", info.URL),
		zap.Int("pending_updates", info.PendingUpdateCount),
		zap.String("last_error", info.LastErrorMessage),
	)
	return nil
}

// HandleWebhookUpdate routes one update to the message or button handler
func (b *Bot) HandleWebhookUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		if !b.authorize(update.Message.From, "message") {
			b.sendMessage(tgbotapi.NewMessage(update.Message.Chat.ID, deniedText))
			return
		}
		b.handleMessage(update.Message)

	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		// Buttons only reach users who already got a keyboard, so no reply here
		if !b.authorize(update.CallbackQuery.From, "callback") {
			return
		}
		b.handleCallbackQuery(update.CallbackQuery)
	}
}

// authorize checks the allow-list and logs rejected users
func (b *Bot) authorize(from *tgbotapi.User, kind string) bool {
	if b.isAllowed(from.ID) {
		return true
	}
	b.logger.Warn("Unauthorized access attempt",
		zap.String("kind", kind),
		zap.Int64("user_id", from.ID),
		zap.String("username", from.UserName),
	)
	return false
}

// Enqueue adds a webhook update to the queue. It blocks while the queue is full.
func (b *Bot) Enqueue(update tgbotapi.Update) {
	b.queue <- update
}

// ServeQueue handles queued webhook updates one at a time until StopQueue
func (b *Bot) ServeQueue() {
	defer close(b.queueDone)
	b.handleUpdates(b.queue)
}

// StopQueue closes the queue and waits until ServeQueue has handled what was left in it
func (b *Bot) StopQueue() {
	close(b.queue)
	<-b.queueDone
}

func (b *Bot) handleUpdates(updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		b.HandleWebhookUpdate(update)
	}
}
