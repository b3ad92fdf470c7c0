package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stockpulse/backtest/internal/logger"
	"github.com/stockpulse/backtest/internal/types"
)

// Client fetches historical bars from an external data vendor.
type Client interface {
	// Name identifies the vendor in logs.
	Name() string
	// Bars returns daily bars for symbol over [start, end], ascending by
	// time.
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error)
}

// Provider wraps a Client with a TTL cache so repeated requests for the
// same range, benchmark series included, hit the vendor once. Safe for
// concurrent use.
type Provider struct {
	client Client
	ttl    time.Duration
	logger *logger.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	// now is swappable for tests.
	now func() time.Time
}

type cacheEntry struct {
	bars      []types.Bar
	fetchedAt time.Time
}

// NewProvider creates a provider over client. A non-positive ttl disables
// caching.
func NewProvider(client Client, ttl time.Duration, l *logger.Logger) *Provider {
	if l == nil {
		l = logger.NewNopLogger()
	}

	return &Provider{
		client: client,
		ttl:    ttl,
		logger: l,
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

// Bars returns the bars for symbol over [start, end], from cache when a
// fresh entry exists.
func (p *Provider) Bars(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	key := cacheKey(symbol, start, end)

	p.mu.Lock()
	entry, ok := p.cache[key]
	p.mu.Unlock()

	if ok && p.ttl > 0 && p.now().Sub(entry.fetchedAt) < p.ttl {
		p.logger.Debug("bar cache hit", zap.String("symbol", symbol))

		return entry.bars, nil
	}

	bars, err := p.client.Bars(ctx, symbol, start, end)
	if err != nil {
		// Serve a stale entry over failing outright.
		if ok {
			p.logger.Warn("vendor fetch failed, serving stale bars",
				zap.String("symbol", symbol),
				zap.String("vendor", p.client.Name()),
				zap.Error(err))

			return entry.bars, nil
		}

		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = cacheEntry{bars: bars, fetchedAt: p.now()}
	p.mu.Unlock()

	p.logger.Debug("fetched bars",
		zap.String("symbol", symbol),
		zap.String("vendor", p.client.Name()),
		zap.Int("count", len(bars)))

	return bars, nil
}

// Invalidate drops every cached range for symbol.
func (p *Provider) Invalidate(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key := range p.cache {
		if entryKeySymbol(key) == symbol {
			delete(p.cache, key)
		}
	}
}

func cacheKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", symbol, start.Unix(), end.Unix())
}

func entryKeySymbol(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i]
		}
	}

	return key
}
