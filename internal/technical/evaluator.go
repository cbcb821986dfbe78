// Package technical derives a Buy/Sell/Hold signal from the latest bar and validates it by backtest.
package technical

import (
	"errors"
	"fmt"
	"math"

	"github.com/dyike/StockMateGo/internal/backtest"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/indicators"
)

// MinBars is the shortest history the evaluator will derive a signal from (MACD signal warm-up).
const MinBars = 35

// Rules that can produce a signal, in precedence order.
const (
	RuleRSIOversold    = "rsi_oversold"
	RuleRSIOverbought  = "rsi_overbought"
	RuleGoldenCross    = "ma_golden_cross"
	RuleDeathCross     = "ma_death_cross"
	RuleBollingerLower = "bollinger_lower"
	RuleBollingerUpper = "bollinger_upper"
	RuleNone           = "none"
)

var ruleStrategies = map[string]string{
	RuleRSIOversold:    backtest.StrategyRSI,
	RuleRSIOverbought:  backtest.StrategyRSIShort,
	RuleGoldenCross:    backtest.StrategyMA,
	RuleDeathCross:     backtest.StrategyMAShort,
	RuleBollingerLower: backtest.StrategyBollinger,
	RuleBollingerUpper: backtest.StrategyBollingerShort,
	RuleNone:           backtest.StrategyRSI,
}

type Backtester interface {
	Run(series models.MarketSeries, s backtest.Strategy) (models.BacktestResult, error)
}

type Evaluator struct {
	backtester      Backtester
	confidenceFloor float64
}

func NewEvaluator(bt Backtester, confidenceFloor float64) *Evaluator {
	return &Evaluator{backtester: bt, confidenceFloor: confidenceFloor}
}

// Evaluate never fails; data problems are reported through Degraded and Notes.
func (e *Evaluator) Evaluate(series models.MarketSeries) models.TechnicalAssessment {
	out := models.TechnicalAssessment{
		Signal:          models.SignalHold,
		RawSignal:       models.SignalHold,
		Rule:            RuleNone,
		IndicatorValues: map[string]float64{},
	}
	if series.Len() < MinBars {
		out.Degraded = true
		out.Notes = append(out.Notes, fmt.Sprintf("insufficient history: %d bars, need %d", series.Len(), MinBars))
		return out
	}

	snap := computeSnapshot(series.Closes())
	out.IndicatorValues = snap.values()
	out.Rule, out.RawSignal = snap.rule()
	out.Signal = out.RawSignal

	strategy, _ := backtest.Preset(ruleStrategies[out.Rule])
	res, err := e.backtester.Run(series, strategy)
	out.Backtest = res
	switch {
	case errors.Is(err, models.ErrBacktestInsufficientData):
		out.Signal = models.SignalHold
		out.Degraded = true
		out.Notes = append(out.Notes, fmt.Sprintf("backtest %s: insufficient data, signal held", strategy.ID))
	case err != nil:
		out.Degraded = true
		out.Notes = append(out.Notes, fmt.Sprintf("backtest %s failed, signal not validated: %v", strategy.ID, err))
	case out.RawSignal != models.SignalHold && res.WinRate < e.confidenceFloor:
		out.Signal = models.SignalHold
		out.Degraded = true
		out.Notes = append(out.Notes, fmt.Sprintf("backtest %s win rate %.2f below confidence floor %.2f, %s downgraded to Hold",
			strategy.ID, res.WinRate, e.confidenceFloor, out.RawSignal))
	}
	return out
}

type snapshot struct {
	close, prevSMA5, prevSMA20 float64
	sma5, sma20, ema12, ema26  float64
	rsi                        float64
	macd, macdSignal, macdHist float64
	upper, middle, lower       float64
}

func computeSnapshot(closes []float64) snapshot {
	last := len(closes) - 1
	sma5 := indicators.SMA(closes, 5)
	sma20 := indicators.SMA(closes, 20)
	line, signal, hist := indicators.MACD(closes, 12, 26, 9)
	upper, middle, lower := indicators.Bollinger(closes, 20, 2)

	return snapshot{
		close:      closes[last],
		prevSMA5:   sma5[last-1],
		prevSMA20:  sma20[last-1],
		sma5:       sma5[last],
		sma20:      sma20[last],
		ema12:      indicators.EMA(closes, 12)[last],
		ema26:      indicators.EMA(closes, 26)[last],
		rsi:        indicators.RSI(closes, 14)[last],
		macd:       line[last],
		macdSignal: signal[last],
		macdHist:   hist[last],
		upper:      upper[last],
		middle:     middle[last],
		lower:      lower[last],
	}
}

func (s snapshot) values() map[string]float64 {
	all := map[string]float64{
		"close":       s.close,
		"sma5":        s.sma5,
		"sma20":       s.sma20,
		"ema12":       s.ema12,
		"ema26":       s.ema26,
		"rsi14":       s.rsi,
		"macd":        s.macd,
		"macd_signal": s.macdSignal,
		"macd_hist":   s.macdHist,
		"boll_upper":  s.upper,
		"boll_middle": s.middle,
		"boll_lower":  s.lower,
	}
	for k, v := range all {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			delete(all, k)
		}
	}
	return all
}

// rule applies RSI extremes, then a moving average cross on the latest bar, then band breakouts.
func (s snapshot) rule() (string, models.Signal) {
	switch {
	case s.rsi <= 30:
		return RuleRSIOversold, models.SignalBuy
	case s.rsi >= 70:
		return RuleRSIOverbought, models.SignalSell
	case s.prevSMA5 <= s.prevSMA20 && s.sma5 > s.sma20:
		return RuleGoldenCross, models.SignalBuy
	case s.prevSMA5 >= s.prevSMA20 && s.sma5 < s.sma20:
		return RuleDeathCross, models.SignalSell
	case s.close <= s.lower:
		return RuleBollingerLower, models.SignalBuy
	case s.close >= s.upper:
		return RuleBollingerUpper, models.SignalSell
	}
	return RuleNone, models.SignalHold
}
