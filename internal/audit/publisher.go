package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

// ErrBufferFull is returned by Record when the async buffer cannot take more.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher records login attempts to a store and any configured sinks.
// In async mode attempts are queued and written by a background worker;
// Close drains the queue.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger

	queue  chan LoginAttempt
	worker *Worker
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async mode with a queue of size n.
func WithAsyncBuffer(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan LoginAttempt, n)
		}
	}
}

func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.worker = NewWorker(p.write, p.queue)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker.Run()
		}()
	}
	return p
}

// Record stamps and publishes attempt. In async mode it never blocks.
func (p *Publisher) Record(ctx context.Context, attempt LoginAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = requestcontext.Now(ctx)
	}
	attempt.UserAgent = TruncateUserAgent(attempt.UserAgent)
	if attempt.Browser == "" && attempt.OS == "" {
		attempt.Browser, attempt.OS = DescribeUserAgent(attempt.UserAgent)
	}

	if p.queue == nil {
		return p.write(ctx, attempt)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.write(ctx, attempt)
	}
	select {
	case p.queue <- attempt:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping login attempt",
			"principal", attempt.Principal,
			"request_id", requestcontext.RequestID(ctx),
		)
		return ErrBufferFull
	}
}

func (p *Publisher) write(ctx context.Context, attempt LoginAttempt) error {
	if err := p.store.Append(ctx, attempt); err != nil {
		p.logger.ErrorContext(ctx, "failed to persist login attempt",
			"principal", attempt.Principal,
			"error", err,
		)
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, attempt); err != nil {
			p.logger.WarnContext(ctx, "failed to publish login attempt",
				"principal", attempt.Principal,
				"error", err,
			)
		}
	}
	return nil
}

// Close stops accepting async work and waits for the queue to drain.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.queue == nil {
			return
		}
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
	})
}
