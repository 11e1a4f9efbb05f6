package mailbox

import (
	"context"
	"log/slog"

	"cctracker/internal/domain"
)

type Factory func(account domain.Account) Mailbox

// Pool keeps one connected Mailbox per account address. Once more distinct
// accounts than max have been seen, every cached client is closed and the pool
// hands out a fresh client per Acquire for the rest of its life.
// It is used from the poll loop only and is not safe for concurrent use.
type Pool struct {
	factory  Factory
	max      int
	clients  map[string]Mailbox
	seen     map[string]struct{}
	uncached bool
	logger   *slog.Logger
}

func NewPool(factory Factory, max int, logger *slog.Logger) *Pool {
	return &Pool{
		factory: factory,
		max:     max,
		clients: make(map[string]Mailbox),
		seen:    make(map[string]struct{}),
		logger:  logger.With("component", "mailbox_pool"),
	}
}

// ClientFactory builds IMAP clients sharing one set of options.
func ClientFactory(opts Options, logger *slog.Logger) Factory {
	return func(account domain.Account) Mailbox {
		return NewClient(account, opts, logger)
	}
}

// Acquire returns a connected Mailbox for account.
func (p *Pool) Acquire(ctx context.Context, account domain.Account) (Mailbox, error) {
	key := normalizeAddress(account.Address)

	if !p.uncached {
		if mb, ok := p.clients[key]; ok {
			if err := mb.Connect(ctx); err != nil {
				return nil, err
			}
			return mb, nil
		}

		p.seen[key] = struct{}{}
		if len(p.seen) > p.max {
			p.disableCache()
		}
	}

	mb := p.factory(account)
	if !p.uncached {
		p.clients[key] = mb
	}

	if err := mb.Connect(ctx); err != nil {
		if p.uncached {
			mb.Disconnect()
		}
		return nil, err
	}
	return mb, nil
}

// Release returns mb to the pool. Uncached clients are disconnected.
func (p *Pool) Release(mb Mailbox) {
	if mb == nil || !p.uncached {
		return
	}
	mb.Disconnect()
}

// Uncached reports whether the pool has switched to per-use clients.
func (p *Pool) Uncached() bool {
	return p.uncached
}

func (p *Pool) Size() int {
	return len(p.clients)
}

// Close disconnects every cached client.
func (p *Pool) Close() {
	for key, mb := range p.clients {
		mb.Disconnect()
		delete(p.clients, key)
	}
}

func (p *Pool) disableCache() {
	p.logger.Warn("too many accounts for the connection cache, switching to per-use clients",
		"accounts", len(p.seen),
		"max", p.max,
	)
	p.uncached = true
	p.Close()
	p.seen = nil
}
