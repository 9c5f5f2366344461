package bot

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"inspection/internal/catalog"
	"inspection/internal/query"
	"inspection/internal/registration"
	"inspection/internal/storage"
)

// botAPI is the part of tgbotapi.BotAPI the bot uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// Services are the domain components the bot drives
type Services struct {
	Machine  *registration.Machine
	Resolver *query.Resolver
	Catalog  *catalog.Catalog
	Store    storage.Storage
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api          botAPI
	token        string
	machine      *registration.Machine
	resolver     *query.Resolver
	catalog      *catalog.Catalog
	db           storage.Storage
	allowedUsers map[int64]bool // empty allows everyone
	logger       *zap.Logger
	loc          *time.Location

	// webhook updates, handled in arrival order by ServeQueue
	queue     chan tgbotapi.Update
	queueDone chan struct{}
}
