package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller periodically fetches the unread count. It runs independently of
// every other subsystem: a slow or failed tick never blocks user-triggered
// requests, and errors are logged and retried on the next tick.
type Poller struct {
	client   *Client
	interval time.Duration
	logger   *slog.Logger
	onCount  func(int)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller builds a poller invoking onCount after every successful fetch.
func NewPoller(client *Client, interval time.Duration, logger *slog.Logger, onCount func(int)) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{client: client, interval: interval, logger: logger, onCount: onCount}
}

// Start launches the polling loop: one immediate fetch, then one per
// interval until the context is cancelled or Stop is called. Starting a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done

	go func() {
		defer close(done)
		p.tick(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Poller) tick(ctx context.Context) {
	count, err := p.client.UnreadCount(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("unread count poll failed", slog.Any("error", err))
		}
		return
	}
	if p.onCount != nil {
		p.onCount(count)
	}
}
