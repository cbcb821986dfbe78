// Package backtest replays a rule based strategy over historical bars.
//
// Signals are evaluated on the close of bar t and filled at the open of bar t+1,
// so a strategy never trades on information it could not have had.
package backtest

import (
	"fmt"
	"sort"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/models"
)

// Trade is one closed round trip.
type Trade struct {
	EntryIndex int     `json:"entry_index"`
	ExitIndex  int     `json:"exit_index"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Return     float64 `json:"return"`
}

// Result carries the summary plus the individual round trips.
type Result struct {
	models.BacktestResult
	Trades []Trade `json:"trades"`
}

type Engine struct {
	FeeRate  float64
	Slippage float64
}

func NewEngine(cfg config.BacktestConfig) *Engine {
	return &Engine{FeeRate: cfg.FeeRate, Slippage: cfg.Slippage}
}

// Run returns only the summary of Simulate.
func (e *Engine) Run(series models.MarketSeries, s Strategy) (models.BacktestResult, error) {
	res, err := e.Simulate(series, s)
	if err != nil {
		return models.BacktestResult{StrategyID: s.ID}, err
	}
	return res.BacktestResult, nil
}

// Simulate replays s over series. Positions still open on the last bar are not counted.
func (e *Engine) Simulate(series models.MarketSeries, s Strategy) (Result, error) {
	res := Result{BacktestResult: models.BacktestResult{StrategyID: s.ID}}
	if err := s.Validate(); err != nil {
		return res, err
	}
	if series.Len() < s.MinBars() {
		return res, models.NewAnalysisError(models.KindBacktestInsufficientData, nil,
			"strategy %s needs %d bars, got %d", s.ID, s.MinBars(), series.Len())
	}

	closes := series.Closes()
	entryVals, err := IndicatorSeries(s.Entry.Indicator, closes)
	if err != nil {
		return res, err
	}
	exitVals, err := IndicatorSeries(s.Exit.Indicator, closes)
	if err != nil {
		return res, err
	}

	entries := fillIndices(entryVals, s.Entry)
	exits := fillIndices(exitVals, s.Exit)
	prices := fillPrices(series.Bars())
	cost := e.FeeRate + e.Slippage

	for i := 0; i < len(entries); {
		in := entries[i]
		j := sort.SearchInts(exits, in+1)
		if j == len(exits) {
			break
		}
		out := exits[j]
		trade := Trade{
			EntryIndex: in,
			ExitIndex:  out,
			EntryPrice: prices[in],
			ExitPrice:  prices[out],
		}
		trade.Return = tradeReturn(s.Direction, trade.EntryPrice, trade.ExitPrice, cost)
		res.Trades = append(res.Trades, trade)
		i = sort.SearchInts(entries, out+1)
	}

	res.BacktestResult = summarize(s.ID, res.Trades)
	return res, nil
}

// fillIndices lists the bars on which a signal raised at the previous close is executed.
func fillIndices(values []float64, c Condition) []int {
	var out []int
	for t := 0; t+1 < len(values); t++ {
		if c.holds(values[t]) {
			out = append(out, t+1)
		}
	}
	return out
}

func fillPrices(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Open
		if out[i] <= 0 {
			out[i] = b.Close
		}
	}
	return out
}

// tradeReturn charges cost on both the entry and the exit side. A short's return is its
// profit over the notional committed at entry, so it is capped at +100% and unbounded below.
func tradeReturn(dir Direction, entry, exit, cost float64) float64 {
	if entry <= 0 || exit <= 0 {
		return 0
	}
	if dir == Short {
		return (entry*(1-cost) - exit*(1+cost)) / (entry * (1 + cost))
	}
	return exit*(1-cost)/(entry*(1+cost)) - 1
}

func summarize(id string, trades []Trade) models.BacktestResult {
	out := models.BacktestResult{StrategyID: id, TradeCount: len(trades)}
	if len(trades) == 0 {
		return out
	}
	wins := 0
	equity := 1.0
	for _, t := range trades {
		if t.Return > 0 {
			wins++
		}
		equity *= 1 + t.Return
	}
	out.WinRate = float64(wins) / float64(len(trades))
	out.TotalReturn = equity - 1
	return out
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %d trades, win rate %.2f%%, total return %.2f%%",
		r.StrategyID, r.TradeCount, r.WinRate*100, r.TotalReturn*100)
}
