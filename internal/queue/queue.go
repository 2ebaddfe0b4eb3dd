package queue

import (
	"context"
	"sync"

	"github.com/snusnumrick/robie/internal/logger"
)

// Queue serializes work per chat: every chat id owns one worker
// goroutine, so two rapid messages in the same conversation run in
// arrival order instead of racing on its state. Different chats still
// overlap freely.
type Queue struct {
	ctx    context.Context
	logger logger.Logger

	mu      sync.Mutex
	workers map[int64]*worker
	wg      sync.WaitGroup
}

type worker struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

func New(ctx context.Context, log logger.Logger) *Queue {
	return &Queue{
		ctx:     ctx,
		logger:  log,
		workers: make(map[int64]*worker),
	}
}

// Dispatch enqueues the task on the chat's worker, starting one when
// needed. It never blocks the caller.
func (q *Queue) Dispatch(chatID int64, task func()) {
	q.mu.Lock()
	w, ok := q.workers[chatID]
	if !ok {
		w = &worker{wake: make(chan struct{}, 1)}
		q.workers[chatID] = w
		q.wg.Add(1)
		go q.run(chatID, w)
	}
	q.mu.Unlock()

	w.mu.Lock()
	w.pending = append(w.pending, task)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run(chatID int64, w *worker) {
	defer q.wg.Done()
	log := q.logger.WithField("chat_id", chatID)
	log.Debug("Chat worker started")

	for {
		select {
		case <-q.ctx.Done():
			log.Debug("Chat worker stopped")
			return
		case <-w.wake:
		}

		for {
			w.mu.Lock()
			if len(w.pending) == 0 {
				w.mu.Unlock()
				break
			}
			task := w.pending[0]
			w.pending = w.pending[1:]
			w.mu.Unlock()

			task()
		}
	}
}

// Wait blocks until all workers have observed context cancellation.
func (q *Queue) Wait() {
	q.wg.Wait()
}
