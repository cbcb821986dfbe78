package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

// YahooCollector reads daily bars from the Yahoo Finance chart API.
type YahooCollector struct {
	retry *RetryConfig
}

func NewYahooCollector(retry *RetryConfig) *YahooCollector {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &YahooCollector{retry: retry}
}

func (yf *YahooCollector) FetchOHLCV(ctx context.Context, sym ticker.Symbol, lookbackDays int) (models.MarketSeries, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -lookbackDays)
	symbol := sym.YahooSymbol()

	var result []*MarketData
	err := WithRetry(ctx, yf.retry, func() error {
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}
		iter := chart.Get(params)

		result = result[:0]
		for iter.Next() {
			bar := iter.Bar()
			result = append(result, &MarketData{
				Symbol:    symbol,
				Date:      time.Unix(int64(bar.Timestamp), 0),
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				AdjClose:  bar.AdjClose,
				Volume:    int64(bar.Volume),
				Timestamp: time.Now(),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return models.MarketSeries{}, dataUnavailable(sym, err, "yahoo chart request failed")
	}

	series := seriesFromMarketData(sym.String(), result)
	if series.Len() == 0 {
		return models.MarketSeries{}, dataUnavailable(sym, nil, "yahoo returned no bars for the last %d days", lookbackDays)
	}
	log.Debug().Str("ticker", sym.String()).Int("bars", series.Len()).Msg("yahoo bars fetched")
	return series, nil
}

// QuoteInfo is the subset of a live quote shown next to --data-only output.
type QuoteInfo struct {
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Exchange    string          `json:"exchange"`
	Currency    string          `json:"currency"`
	MarketState string          `json:"market_state"`
	Price       decimal.Decimal `json:"price"`
	ChangePct   float64         `json:"change_pct"`
}

// Quote fetches the current quote. It is informational only and never feeds the analysis.
func (yf *YahooCollector) Quote(ctx context.Context, sym ticker.Symbol) (*QuoteInfo, error) {
	var info *QuoteInfo
	err := WithRetry(ctx, yf.retry, func() error {
		q, err := quote.Get(sym.YahooSymbol())
		if err != nil {
			return fmt.Errorf("failed to get quote for %s: %w", sym, err)
		}
		if q == nil {
			return Permanent(fmt.Errorf("no quote for %s", sym))
		}
		info = &QuoteInfo{
			Symbol:      sym.String(),
			Name:        q.ShortName,
			Exchange:    q.FullExchangeName,
			Currency:    q.CurrencyID,
			MarketState: string(q.MarketState),
			Price:       decimal.NewFromFloat(q.RegularMarketPrice),
			ChangePct:   q.RegularMarketChangePercent,
		}
		return nil
	})
	if err != nil {
		return nil, dataUnavailable(sym, err, "yahoo quote request failed")
	}
	return info, nil
}
