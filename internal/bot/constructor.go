package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const queueSize = 100

// NewBot creates a new Telegram bot
func NewBot(token string, svc Services, allowedUserIDs []int64, loc *time.Location, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	return newBot(api, token, svc, allowedUserIDs, loc, logger), nil
}

func newBot(api botAPI, token string, svc Services, allowedUserIDs []int64, loc *time.Location, logger *zap.Logger) *Bot {
	allowedUsers := make(map[int64]bool)
	for _, id := range allowedUserIDs {
		allowedUsers[id] = true
	}
	if loc == nil {
		loc = time.Local
	}

	return &Bot{
		api:          api,
		token:        token,
		machine:      svc.Machine,
		resolver:     svc.Resolver,
		catalog:      svc.Catalog,
		db:           svc.Store,
		allowedUsers: allowedUsers,
		logger:       logger,
		loc:          loc,
		queue:        make(chan tgbotapi.Update, queueSize),
		queueDone:    make(chan struct{}),
	}
}

// isAllowed reports whether userID may use the bot
func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || b.allowedUsers[userID]
}
