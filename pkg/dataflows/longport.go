package dataflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

// Longport returns at most 1000 candlesticks per request.
const longportMaxCandles = 1000

var ErrLongportCredentials = errors.New("longport API credentials not configured")

// LongportCollector reads daily candlesticks through the Longport quote API.
type LongportCollector struct {
	quoteCtx *quote.QuoteContext
	retry    *RetryConfig
}

func NewLongportCollector(cfg config.Config, retry *RetryConfig) (*LongportCollector, error) {
	if cfg.LongportAppKey == "" || cfg.LongportAppSecret == "" || cfg.LongportAccessToken == "" {
		return nil, ErrLongportCredentials
	}
	if retry == nil {
		retry = DefaultRetryConfig()
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken))
	if err != nil {
		return nil, fmt.Errorf("longport config: %w", err)
	}
	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, fmt.Errorf("longport quote context: %w", err)
	}
	return &LongportCollector{quoteCtx: quoteContext, retry: retry}, nil
}

// FetchOHLCV requests one candle per calendar day of lookback, which over-covers the trading days.
func (lpc *LongportCollector) FetchOHLCV(ctx context.Context, sym ticker.Symbol, lookbackDays int) (models.MarketSeries, error) {
	if lpc.quoteCtx == nil {
		return models.MarketSeries{}, errors.New("quote context is nil")
	}
	count := min(max(lookbackDays, 1), longportMaxCandles)
	symbol := sym.LongportSymbol()

	var sticks []*quote.Candlestick
	err := WithRetry(ctx, lpc.retry, func() error {
		var err error
		sticks, err = lpc.quoteCtx.Candlesticks(ctx, symbol, quote.PeriodDay, int32(count), quote.AdjustTypeNo)
		return err
	})
	if err != nil {
		return models.MarketSeries{}, dataUnavailable(sym, err, "longport candlesticks request failed")
	}

	cutoff := time.Now().AddDate(0, 0, -lookbackDays)
	data := make([]*MarketData, 0, len(sticks))
	for _, s := range sticks {
		if s == nil {
			continue
		}
		date := time.Unix(s.Timestamp, 0)
		if date.Before(cutoff) {
			continue
		}
		data = append(data, &MarketData{
			Symbol:    symbol,
			Date:      date,
			Open:      decimalOrZero(s.Open),
			High:      decimalOrZero(s.High),
			Low:       decimalOrZero(s.Low),
			Close:     decimalOrZero(s.Close),
			AdjClose:  decimalOrZero(s.Close),
			Volume:    s.Volume,
			Timestamp: time.Now(),
		})
	}

	series := seriesFromMarketData(sym.String(), data)
	if series.Len() == 0 {
		return models.MarketSeries{}, dataUnavailable(sym, nil, "longport returned no candlesticks")
	}
	log.Debug().Str("ticker", sym.String()).Int("bars", series.Len()).Msg("longport bars fetched")
	return series, nil
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
