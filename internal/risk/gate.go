// Package risk computes realized volatility, drawdown and VaR and issues the veto verdict.
package risk

import (
	"fmt"
	"math"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/indicators"
)

// Metric names used in breaches.
const (
	MetricVolatility  = "volatility"
	MetricMaxDrawdown = "max_drawdown"
)

type Gate struct {
	thresholds config.Thresholds
}

func NewGate(th config.Thresholds) *Gate {
	return &Gate{thresholds: th}
}

// Assess always produces a verdict unless the series has fewer than two return observations.
func (g *Gate) Assess(series models.MarketSeries) (models.RiskAssessment, error) {
	closes := series.Closes()
	returns := indicators.SimpleReturns(closes)
	if len(returns) < 2 {
		return models.RiskAssessment{}, models.NewAnalysisError(models.KindRiskComputation, nil,
			"%s: need at least 2 return observations, got %d", series.Ticker(), len(returns))
	}

	vol := indicators.SampleStddev(returns) * math.Sqrt(indicators.TradingDaysPerYear)
	dd := indicators.MaxDrawdown(closes)
	if !finite(vol) || !finite(dd) {
		return models.RiskAssessment{}, models.NewAnalysisError(models.KindRiskComputation, nil,
			"%s: non-finite risk measures (volatility=%v, drawdown=%v)", series.Ticker(), vol, dd)
	}

	out := models.RiskAssessment{
		Verdict:     models.VerdictApproved,
		Volatility:  vol,
		MaxDrawdown: dd,
		VaR:         g.valueAtRisk(returns, vol),
	}
	if vol > g.thresholds.Volatility {
		out.Breaches = append(out.Breaches, models.Breach{Metric: MetricVolatility, Value: vol, Threshold: g.thresholds.Volatility})
	}
	if dd > g.thresholds.MaxDrawdown {
		out.Breaches = append(out.Breaches, models.Breach{Metric: MetricMaxDrawdown, Value: dd, Threshold: g.thresholds.MaxDrawdown})
	}
	if len(out.Breaches) > 0 {
		out.Verdict = models.VerdictRejected
	}
	return out, nil
}

func (g *Gate) valueAtRisk(returns []float64, vol float64) float64 {
	if g.thresholds.VaRMethod == consts.VaRMethodVolatility {
		return vol
	}
	conf := g.thresholds.VaRConfidence
	if conf <= 0 || conf >= 1 {
		conf = 0.95
	}
	v := math.Max(0, -indicators.Quantile(returns, 1-conf))
	if !finite(v) {
		return 0
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (g *Gate) String() string {
	return fmt.Sprintf("risk gate (volatility > %.2f or drawdown > %.2f rejects)",
		g.thresholds.Volatility, g.thresholds.MaxDrawdown)
}
