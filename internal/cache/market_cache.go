// Package cache keeps recently collected market data in memory for the lifetime of the process,
// so batch runs over overlapping tickers hit each vendor once.
package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/dataflows"
)

const DefaultTTL = 5 * time.Minute

type cachedSeries struct {
	series    models.MarketSeries
	timestamp time.Time
}

type cachedNews struct {
	digest    models.NewsDigest
	timestamp time.Time
}

// MarketDataCache wraps a collector with an in-memory TTL cache. When csvDir is set, every
// fetched series is also written to csvDir/<ticker>.csv for offline reuse.
type MarketDataCache struct {
	next   dataflows.Collector
	ttl    time.Duration
	csvDir string
	now    func() time.Time

	mu     sync.RWMutex
	series map[string]*cachedSeries
	news   map[string]*cachedNews
	wg     sync.WaitGroup
}

func NewMarketDataCache(next dataflows.Collector, ttl time.Duration, csvDir string) *MarketDataCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MarketDataCache{
		next:   next,
		ttl:    ttl,
		csvDir: csvDir,
		now:    time.Now,
		series: make(map[string]*cachedSeries),
		news:   make(map[string]*cachedNews),
	}
}

func (c *MarketDataCache) FetchOHLCV(ctx context.Context, sym ticker.Symbol, lookbackDays int) (models.MarketSeries, error) {
	key := fmt.Sprintf("%s-%d", sym, lookbackDays)

	c.mu.RLock()
	cached, ok := c.series[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.timestamp) <= c.ttl {
		log.Debug().Str("ticker", sym.String()).Msg("using memory cache")
		return cached.series, nil
	}

	series, err := c.next.FetchOHLCV(ctx, sym, lookbackDays)
	if err != nil {
		return series, err
	}

	c.mu.Lock()
	c.series[key] = &cachedSeries{series: series, timestamp: c.now()}
	c.mu.Unlock()

	if c.csvDir != "" {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			path := filepath.Join(c.csvDir, sym.String()+".csv")
			if err := dataflows.WriteBarsCSV(path, series.Bars()); err != nil {
				log.Warn().Err(err).Str("ticker", sym.String()).Msg("failed to write market data CSV")
			}
		}()
	}
	return series, nil
}

func (c *MarketDataCache) FetchNews(ctx context.Context, sym ticker.Symbol, limit int) (models.NewsDigest, error) {
	key := fmt.Sprintf("%s-%d", sym, limit)

	c.mu.RLock()
	cached, ok := c.news[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.timestamp) <= c.ttl {
		return cached.digest, nil
	}

	digest, err := c.next.FetchNews(ctx, sym, limit)
	if err != nil {
		return digest, err
	}
	c.mu.Lock()
	c.news[key] = &cachedNews{digest: digest, timestamp: c.now()}
	c.mu.Unlock()
	return digest, nil
}

// Flush waits for pending CSV writes.
func (c *MarketDataCache) Flush() {
	c.wg.Wait()
}

func (c *MarketDataCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series = make(map[string]*cachedSeries)
	c.news = make(map[string]*cachedNews)
}

// Stats reports the number of cached entries.
func (c *MarketDataCache) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]int{
		"series": len(c.series),
		"news":   len(c.news),
	}
}
