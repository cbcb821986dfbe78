package graph

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/indicators"
)

// indicatorOrder is the fixed order indicator values are cited in the reasoning.
var indicatorOrder = []string{"close", "rsi14", "sma5", "sma20", "macd_hist", "boll_lower", "boll_upper"}

// Decide applies the assembly rules in priority order. The risk veto is checked first.
func Decide(verdict models.Verdict, signal models.Signal, sentimentScore float64, th config.Thresholds) models.Decision {
	switch {
	case verdict != models.VerdictApproved:
		return models.DecisionWait
	case signal == models.SignalBuy && sentimentScore >= th.BullishConfirmation:
		return models.DecisionBuy
	case signal == models.SignalSell:
		return models.DecisionSell
	}
	return models.DecisionWait
}

// Assemble builds the report from the three finished sub-results.
func Assemble(ticker string, s models.SentimentResult, t models.TechnicalAssessment, r models.RiskAssessment, th config.Thresholds) models.StockAnalysisReport {
	// Estimators are not trusted to clamp.
	score := roundTo(indicators.ClampFloat64(finiteOr(s.Score, 50), 0, 100), 2)
	varValue := roundTo(math.Max(0, finiteOr(r.VaR, 0)), 4)
	decision := Decide(r.Verdict, t.Signal, score, th)

	return models.StockAnalysisReport{
		Ticker:          ticker,
		SentimentScore:  score,
		TechnicalSignal: t.Signal,
		RiskAssessment:  r.Verdict,
		VaRValue:        varValue,
		FinalDecision:   decision,
		Reasoning:       reasoning(ticker, decision, score, s, t, r, th),
	}
}

func reasoning(ticker string, decision models.Decision, score float64, s models.SentimentResult, t models.TechnicalAssessment, r models.RiskAssessment, th config.Thresholds) string {
	parts := []string{fmt.Sprintf("%s: %s.", ticker, decision)}

	// 风控结论
	if r.Verdict == models.VerdictRejected {
		breaches := make([]string, 0, len(r.Breaches))
		for _, b := range r.Breaches {
			breaches = append(breaches, fmt.Sprintf("%s %s exceeds %s", b.Metric, pct(b.Value), pct(b.Threshold)))
		}
		parts = append(parts, fmt.Sprintf("Risk gate Rejected (%s); veto applied.", strings.Join(breaches, ", ")))
	} else {
		parts = append(parts, fmt.Sprintf("Risk gate Approved: volatility %s (limit %s), max drawdown %s (limit %s).",
			pct(r.Volatility), pct(th.Volatility), pct(r.MaxDrawdown), pct(th.MaxDrawdown)))
	}
	parts = append(parts, fmt.Sprintf("VaR %s.", decimal.NewFromFloat(roundTo(r.VaR, 4)).StringFixed(4)))

	// 技术面
	tech := fmt.Sprintf("Technical %s via %s", t.Signal, t.Rule)
	if t.RawSignal != "" && t.RawSignal != t.Signal {
		tech += fmt.Sprintf(" (raw %s)", t.RawSignal)
	}
	if values := citeIndicators(t.IndicatorValues); values != "" {
		tech += "; " + values
	}
	parts = append(parts, tech+".")
	if t.Backtest.StrategyID != "" {
		parts = append(parts, fmt.Sprintf("Backtest %s: win rate %s over %d trades, total return %s.",
			t.Backtest.StrategyID, pct(t.Backtest.WinRate), t.Backtest.TradeCount, pct(t.Backtest.TotalReturn)))
	}

	// 情绪面
	parts = append(parts, fmt.Sprintf("Sentiment %s (%s, %s, %d cited headlines).",
		decimal.NewFromFloat(score).StringFixed(2), s.Regime, s.Source, len(s.Citations)))

	switch decision {
	case models.DecisionBuy:
		parts = append(parts, fmt.Sprintf("Buy confirmed: sentiment %s >= %s.",
			decimal.NewFromFloat(score).StringFixed(2), decimal.NewFromFloat(th.BullishConfirmation).StringFixed(2)))
	case models.DecisionSell:
		parts = append(parts, "Sell on technical signal.")
	default:
		if r.Verdict == models.VerdictApproved {
			if t.Signal == models.SignalBuy {
				parts = append(parts, fmt.Sprintf("Wait: sentiment %s below confirmation %s.",
					decimal.NewFromFloat(score).StringFixed(2), decimal.NewFromFloat(th.BullishConfirmation).StringFixed(2)))
			} else {
				parts = append(parts, "Wait: no confirmed signal.")
			}
		}
	}

	var degraded []string
	if t.Degraded {
		note := "technical"
		if len(t.Notes) > 0 {
			note += " (" + strings.Join(t.Notes, "; ") + ")"
		}
		degraded = append(degraded, note)
	}
	if s.Degraded {
		degraded = append(degraded, "sentiment (neutral default)")
	}
	if len(degraded) > 0 {
		parts = append(parts, "Degraded: "+strings.Join(degraded, ", ")+".")
	}
	return strings.Join(parts, " ")
}

func citeIndicators(values map[string]float64) string {
	var out []string
	for _, name := range indicatorOrder {
		v, ok := values[name]
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("%s %s", name, decimal.NewFromFloat(roundTo(v, 2)).StringFixed(2)))
	}
	return strings.Join(out, ", ")
}

func pct(v float64) string {
	return decimal.NewFromFloat(finiteOr(v, 0)).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(finiteOr(v, 0)).Round(places).InexactFloat64()
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
