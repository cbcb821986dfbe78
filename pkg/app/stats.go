package app

import (
	"math"
	"time"

	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/dataflows"
	"github.com/dyike/StockMateGo/pkg/indicators"
)

// PriceStats is the --data-only summary of a collected series.
type PriceStats struct {
	Ticker      string    `json:"ticker"`
	Bars        int       `json:"bars"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	LastClose   float64   `json:"last_close"`
	ChangePct   float64   `json:"change_pct"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	AvgVolume   float64   `json:"avg_volume"`
	Volatility  float64   `json:"volatility"`
	MaxDrawdown float64   `json:"max_drawdown"`

	// Quote is the live quote when the price source offers one.
	Quote *dataflows.QuoteInfo `json:"quote,omitempty"`
}

func ComputePriceStats(series models.MarketSeries) (PriceStats, error) {
	bars := series.Bars()
	if len(bars) == 0 {
		return PriceStats{}, models.NewAnalysisError(models.KindDataUnavailable, nil, "%s: empty price history", series.Ticker())
	}
	first, last := bars[0], bars[len(bars)-1]
	out := PriceStats{
		Ticker:    series.Ticker(),
		Bars:      len(bars),
		From:      first.Date,
		To:        last.Date,
		LastClose: last.Close,
		High:      math.Inf(-1),
		Low:       math.Inf(1),
	}
	for _, b := range bars {
		out.High = math.Max(out.High, b.High)
		out.Low = math.Min(out.Low, b.Low)
	}
	if first.Close > 0 {
		out.ChangePct = (last.Close/first.Close - 1) * 100
	}
	closes := series.Closes()
	out.AvgVolume = indicators.Mean(series.Volumes())
	out.Volatility = indicators.SampleStddev(indicators.SimpleReturns(closes)) * math.Sqrt(indicators.TradingDaysPerYear)
	out.MaxDrawdown = indicators.MaxDrawdown(closes)
	return out, nil
}
