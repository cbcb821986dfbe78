package dataflows

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

// CachedCollector puts the JSON file cache in front of another collector.
type CachedCollector struct {
	next   Collector
	prices *CacheManager
	news   *CacheManager
}

func NewCachedCollector(next Collector, prices, news *CacheManager) *CachedCollector {
	return &CachedCollector{next: next, prices: prices, news: news}
}

type priceKey struct {
	Ticker string `json:"ticker"`
	Days   int    `json:"days"`
}

type newsKey struct {
	Ticker string `json:"ticker"`
	Limit  int    `json:"limit"`
}

func (c *CachedCollector) FetchOHLCV(ctx context.Context, sym ticker.Symbol, lookbackDays int) (models.MarketSeries, error) {
	key := priceKey{Ticker: sym.String(), Days: lookbackDays}
	var bars []models.Bar
	if c.prices.Get("prices", "daily", key, &bars) && len(bars) > 0 {
		log.Debug().Str("ticker", sym.String()).Int("bars", len(bars)).Msg("price cache hit")
		return models.NewMarketSeries(sym.String(), bars), nil
	}

	series, err := c.next.FetchOHLCV(ctx, sym, lookbackDays)
	if err != nil {
		return series, err
	}
	if err := c.prices.Set("prices", "daily", key, series.Bars()); err != nil {
		log.Warn().Err(err).Str("ticker", sym.String()).Msg("failed to cache prices")
	}
	return series, nil
}

func (c *CachedCollector) FetchNews(ctx context.Context, sym ticker.Symbol, limit int) (models.NewsDigest, error) {
	key := newsKey{Ticker: sym.String(), Limit: limit}
	var items []models.NewsItem
	if c.news.Get("news", "digest", key, &items) {
		return models.NewNewsDigest(items), nil
	}

	digest, err := c.next.FetchNews(ctx, sym, limit)
	if err != nil {
		return digest, err
	}
	if err := c.news.Set("news", "digest", key, digest.Items()); err != nil {
		log.Warn().Err(err).Str("ticker", sym.String()).Msg("failed to cache news")
	}
	return digest, nil
}
