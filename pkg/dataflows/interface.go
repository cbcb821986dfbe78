// Package dataflows fetches daily price history and news for A-share tickers.
package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

const DefaultNewsLimit = 10

type PriceSource interface {
	FetchOHLCV(ctx context.Context, sym ticker.Symbol, lookbackDays int) (models.MarketSeries, error)
}

type NewsSource interface {
	FetchNews(ctx context.Context, sym ticker.Symbol, limit int) (models.NewsDigest, error)
}

// Collector is everything the collect phase needs. An empty price history is a
// DataUnavailableError; an empty news feed is just an empty digest.
type Collector interface {
	PriceSource
	NewsSource
}

// Quoter returns a live quote. Only Yahoo provides one.
type Quoter interface {
	Quote(ctx context.Context, sym ticker.Symbol) (*QuoteInfo, error)
}

// NewQuoter returns the quote source for cfg, or nil when the price source has none.
func NewQuoter(cfg config.Config) Quoter {
	if cfg.Data.PriceSource != consts.PriceSourceYahoo {
		return nil
	}
	return NewYahooCollector(RetryConfigForAttempts(1))
}

// NewCollector wires the price and news sources selected in cfg, behind the file cache when enabled.
func NewCollector(cfg config.Config) (Collector, error) {
	retry := RetryConfigForAttempts(cfg.Data.RetryAttempts)
	files := NewFileCollector(cfg.DataDir)

	var prices PriceSource
	switch cfg.Data.PriceSource {
	case consts.PriceSourceLongport:
		lp, err := NewLongportCollector(cfg, retry)
		if err != nil {
			return nil, err
		}
		prices = lp
	case consts.PriceSourceFile:
		prices = files
	default:
		prices = NewYahooCollector(retry)
	}

	var news NewsSource
	switch cfg.Data.NewsSource {
	case consts.NewsSourceFile:
		news = files
	case consts.NewsSourceNone:
		news = NoNews{}
	default:
		news = NewGoogleNewsClient(GoogleNewsOptions{Retry: retry})
	}

	var out Collector = NewCompositeCollector(prices, news)
	if cfg.CacheEnabled && cfg.Data.PriceSource != consts.PriceSourceFile {
		out = NewCachedCollector(out,
			NewCacheManager(filepath.Join(cfg.DataCacheDir, "prices"), 24*time.Hour, true),
			NewCacheManager(filepath.Join(cfg.DataCacheDir, "news"), 30*time.Minute, true),
		)
	}
	return out, nil
}

func dataUnavailable(sym ticker.Symbol, err error, format string, args ...any) error {
	return models.NewAnalysisError(models.KindDataUnavailable, err, "%s: %s", sym, fmt.Sprintf(format, args...))
}
