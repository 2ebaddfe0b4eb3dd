package core

import (
	"context"

	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/logger"
	"github.com/snusnumrick/robie/internal/queue"
	"github.com/snusnumrick/robie/internal/telegram"
)

// Bot pulls updates off the transport and hands each message to the
// router on its chat's worker, so turns within one conversation run in
// arrival order.
type Bot struct {
	tg     telegram.Client
	router *Router
	queue  *queue.Queue
	cfg    config.TelegramConfig
	logger logger.Logger
}

func NewBot(
	tg telegram.Client,
	router *Router,
	q *queue.Queue,
	cfg config.TelegramConfig,
	log logger.Logger,
) *Bot {
	return &Bot{
		tg:     tg,
		router: router,
		queue:  q,
		cfg:    cfg,
		logger: log,
	}
}

func (b *Bot) Start(ctx context.Context) error {
	updates := b.tg.GetUpdatesChan(b.tg.NewUpdate(0, 60, 0))

	b.logger.WithField("username", b.tg.Self().UserName).Info("Bot started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-updates:
			msg := update.Message
			if msg == nil || msg.From == nil {
				continue
			}

			b.logger.WithFields(logger.Fields{
				"chat_id":   msg.Chat.ID,
				"user_id":   msg.From.ID,
				"username":  msg.From.UserName,
				"has_photo": len(msg.Photo) > 0,
				"has_voice": msg.Voice != nil,
			}).Debug("Received message")

			if !b.cfg.IsAllowed(msg.From.ID) {
				b.logger.WithFields(logger.Fields{
					"user_id":  msg.From.ID,
					"username": msg.From.UserName,
					"chat_id":  msg.Chat.ID,
				}).Warn("Unauthorized access attempt")
				continue
			}

			message := msg
			b.queue.Dispatch(msg.Chat.ID, func() {
				b.router.Route(ctx, message)
			})
		}
	}
}
