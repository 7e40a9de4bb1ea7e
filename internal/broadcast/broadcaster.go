// Package broadcast fans committed transactions out to live subscribers.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/eaglebank/transactions-svc/shared/models"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("broadcaster closed")

const DefaultBufferSize = 256

// Observer receives delivery statistics, typically for metrics.
type Observer interface {
	StreamDropped()
	StreamSubscribers(n int)
}

type nopObserver struct{}

func (nopObserver) StreamDropped()        {}
func (nopObserver) StreamSubscribers(int) {}

// Broadcaster is a multicast sink. Every subscriber owns a bounded buffer
// drained by its own goroutine, so Publish never waits on a reader. When a
// buffer is full the oldest pending item for that subscriber is dropped and
// counted.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	closed      bool

	bufferSize int
	logger     *zap.Logger
	observer   Observer

	published atomic.Int64
	dropped   atomic.Int64
}

func New(bufferSize int, logger *zap.Logger, observer Observer) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Broadcaster{
		subscribers: make(map[uint64]*subscriber),
		bufferSize:  bufferSize,
		logger:      logger,
		observer:    observer,
	}
}

// Publish hands tx to every current subscriber without blocking.
func (b *Broadcaster) Publish(tx models.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.published.Inc()
	for id, sub := range b.subscribers {
		if sub.enqueue(tx, b.bufferSize) {
			b.dropped.Inc()
			b.observer.StreamDropped()
			b.logger.Warn("stream subscriber too slow, dropped oldest transaction",
				zap.Uint64("subscriber", id), zap.Int("buffer", b.bufferSize))
		}
	}
	return nil
}

// Subscribe registers a subscriber before returning, so every transaction
// published after the call is delivered to it. The channel is closed when ctx
// ends or the broadcaster is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan models.Transaction {
	out := make(chan models.Transaction)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(out)
		return out
	}
	id := b.nextID
	b.nextID++
	sub := &subscriber{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    out,
	}
	b.subscribers[id] = sub
	count := len(b.subscribers)
	b.mu.Unlock()

	b.observer.StreamSubscribers(count)
	go b.pump(ctx, id, sub)
	return out
}

// Close ends every subscription and rejects further publishes.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.done)
		delete(b.subscribers, id)
	}
	b.observer.StreamSubscribers(0)
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were discarded by the overflow policy.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Broadcaster) pump(ctx context.Context, id uint64, sub *subscriber) {
	defer close(sub.out)
	defer b.unsubscribe(id)

	for {
		tx, ok := sub.next()
		if !ok {
			select {
			case <-sub.notify:
				continue
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			}
		}

		select {
		case sub.out <- tx:
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		}
	}
}

func (b *Broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.done)
		delete(b.subscribers, id)
	}
	count := len(b.subscribers)
	closed := b.closed
	b.mu.Unlock()

	if !closed {
		b.observer.StreamSubscribers(count)
	}
}

type subscriber struct {
	mu      sync.Mutex
	pending []models.Transaction

	notify chan struct{}
	done   chan struct{}
	out    chan models.Transaction
}

// enqueue appends tx and reports whether the oldest item had to be dropped.
func (s *subscriber) enqueue(tx models.Transaction, limit int) bool {
	s.mu.Lock()
	dropped := false
	if len(s.pending) >= limit {
		s.pending = s.pending[1:]
		dropped = true
	}
	s.pending = append(s.pending, tx)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (s *subscriber) next() (models.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return models.Transaction{}, false
	}
	tx := s.pending[0]
	s.pending[0] = models.Transaction{}
	s.pending = s.pending[1:]
	return tx, true
}
