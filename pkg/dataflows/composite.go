package dataflows

import (
	"context"

	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

// CompositeCollector takes prices from one source and news from another.
type CompositeCollector struct {
	prices PriceSource
	news   NewsSource
}

func NewCompositeCollector(prices PriceSource, news NewsSource) *CompositeCollector {
	if news == nil {
		news = NoNews{}
	}
	return &CompositeCollector{prices: prices, news: news}
}

func (c *CompositeCollector) FetchOHLCV(ctx context.Context, sym ticker.Symbol, lookbackDays int) (models.MarketSeries, error) {
	return c.prices.FetchOHLCV(ctx, sym, lookbackDays)
}

func (c *CompositeCollector) FetchNews(ctx context.Context, sym ticker.Symbol, limit int) (models.NewsDigest, error) {
	return c.news.FetchNews(ctx, sym, limit)
}

// NoNews always returns an empty digest.
type NoNews struct{}

func (NoNews) FetchNews(context.Context, ticker.Symbol, int) (models.NewsDigest, error) {
	return models.NewNewsDigest(nil), nil
}
