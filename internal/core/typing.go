package core

import (
	"sync"
	"time"

	"github.com/snusnumrick/robie/internal/telegram"
)

// startTyping emits a typing indicator immediately and then on every
// tick until the returned stop function runs. Stop is idempotent and
// must be called on success and failure paths alike, so the signal
// settles exactly once.
func (r *Router) startTyping(chatID int64, interval time.Duration) func() {
	r.sendTyping(chatID)

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.sendTyping(chatID)
			}
		}
	}()

	return func() {
		once.Do(func() {
			close(done)
		})
	}
}

func (r *Router) sendTyping(chatID int64) {
	if err := r.tg.SendChatAction(chatID, telegram.ActionTyping); err != nil {
		r.logger.WithError(err).Debug("Failed to send chat action")
	}
}
