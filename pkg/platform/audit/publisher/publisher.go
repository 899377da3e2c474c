// Package publisher fans audit events out to a store, synchronously or via a
// bounded background queue.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "troupon/pkg/domain"
	audit "troupon/pkg/platform/audit"
	"troupon/pkg/requestcontext"
)

const drainBatch = 64

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buf  *ringBuffer
	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking. At most capacity events are held;
// beyond that the oldest are dropped.
func WithAsyncBuffer(capacity int) Option {
	return func(p *Publisher) {
		p.buf = newRingBuffer(capacity)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.buf != nil {
		p.wake = make(chan struct{}, 1)
		p.done = make(chan struct{})
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records event. Missing timestamp, request ID and client IP are filled
// from ctx.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	event.Category = audit.AuditEvent(event.Action).Category()

	if p.buf == nil {
		return p.store.Append(ctx, event)
	}
	p.buf.enqueue(event)
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// Dropped reports how many queued events were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 {
	if p.buf == nil {
		return 0
	}
	return p.buf.droppedCount()
}

// Close stops the background worker after draining queued events.
func (p *Publisher) Close() {
	if p.buf == nil {
		return
	}
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-p.done:
			p.drain()
			return
		}
	}
}

func (p *Publisher) drain() {
	for {
		batch := p.buf.dequeueBatch(drainBatch)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := p.store.Append(context.Background(), event); err != nil {
				p.logger.Error("failed to persist audit event",
					"action", event.Action,
					"request_id", event.RequestID,
					"error", err,
				)
			}
		}
	}
}
