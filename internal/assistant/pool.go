package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pool keeps one Client per learner and opens it on demand. Clients unused
// for longer than the idle limit are closed by EvictIdle.
type Pool struct {
	url  string
	opts []Option
	now  func() time.Time

	mu      sync.Mutex
	clients map[string]*pooled
}

type pooled struct {
	client   *Client
	lastUsed time.Time
}

// NewPool creates a pool for the service at url. opts apply to every client.
func NewPool(url string, opts ...Option) *Pool {
	return &Pool{url: url, opts: opts, now: time.Now, clients: make(map[string]*pooled)}
}

// Get returns the connected client for key. token authenticates the next
// connection, so a reconnect after Close uses the caller's current token.
func (p *Pool) Get(ctx context.Context, key, token string) (*Client, error) {
	p.mu.Lock()
	entry, ok := p.clients[key]
	if !ok {
		entry = &pooled{client: New(p.url, p.opts...)}
		p.clients[key] = entry
	}
	entry.lastUsed = p.now()
	c := entry.client
	p.mu.Unlock()

	c.SetToken(token)
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// EvictIdle closes and forgets clients not used within maxIdle. It returns
// how many were evicted.
func (p *Pool) EvictIdle(maxIdle time.Duration) int {
	cutoff := p.now().Add(-maxIdle)

	p.mu.Lock()
	var idle []*Client
	for key, entry := range p.clients {
		if entry.lastUsed.Before(cutoff) {
			idle = append(idle, entry.client)
			delete(p.clients, key)
		}
	}
	p.mu.Unlock()

	for _, c := range idle {
		_ = c.Close()
	}
	return len(idle)
}

// Run evicts idle clients every interval until ctx is done.
func (p *Pool) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.EvictIdle(maxIdle); n > 0 {
				slog.Debug("evicted idle assistant clients", "count", n, "remaining", p.Len())
			}
		}
	}
}

// Close disconnects every client.
func (p *Pool) Close() {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*pooled)
	p.mu.Unlock()

	for _, entry := range clients {
		_ = entry.client.Close()
	}
}
