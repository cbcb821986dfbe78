// Package position sizes a trade with the Kelly criterion f* = (b*p - q) / b.
package position

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dyike/StockMateGo/models"
)

var validate = validator.New()

type Warning string

const (
	WarningNegativeEV  Warning = "negative_ev"
	WarningHighRisk    Warning = "high_risk"
	WarningHalfKelly   Warning = "half_kelly"
	WarningLowWinRate  Warning = "low_win_rate"
	WarningControlled  Warning = "controlled"
	defaultWinLossRate         = 2.0
)

var warningText = map[Warning]string{
	WarningNegativeEV: "⚠️ 负期望值：不建议交易，凯利公式建议空仓等待更好的机会。",
	WarningHighRisk:   "⚠️ 高风险警告：凯利公式建议仓位过高，强烈建议使用半凯利或1/4凯利以降低风险。",
	WarningHalfKelly:  "⚠️ 风险提示：建议考虑使用半凯利公式（保守策略）以平滑资金曲线。",
	WarningLowWinRate: "⚠️ 胜率偏低：虽然期望值为正，但建议谨慎使用较小仓位。",
	WarningControlled: "✅ 风险可控：可以考虑使用凯利公式建议的仓位。",
}

func (w Warning) Text() string { return warningText[w] }

type Input struct {
	WinProbability float64         `json:"win_probability" validate:"gte=0,lte=100"` // percent
	WinLossRatio   float64         `json:"win_loss_ratio" validate:"gt=0"`
	Capital        decimal.Decimal `json:"capital"`
	StopLossPct    float64         `json:"stop_loss_pct" validate:"gte=0"`
	TakeProfitPct  float64         `json:"take_profit_pct" validate:"gte=0"`
}

type Sizing struct {
	Input
	KellyFraction      float64         `json:"kelly_fraction"`
	RecommendedAmount  decimal.Decimal `json:"recommended_amount"`
	HalfKellyAmount    decimal.Decimal `json:"half_kelly_amount"`
	ExpectedValue      float64         `json:"expected_value"`
	PositiveEV         bool            `json:"is_positive_ev"`
	Warning            Warning         `json:"warning"`
	ActualWinLossRatio float64         `json:"actual_win_loss_ratio"`
}

// Calculate returns the Kelly fraction (never negative) and the capital it implies.
func Calculate(in Input) (Sizing, error) {
	if err := validate.Struct(in); err != nil {
		return Sizing{}, fmt.Errorf("invalid kelly input: %w", err)
	}
	if in.Capital.IsNegative() {
		return Sizing{}, fmt.Errorf("invalid kelly input: capital %s is negative", in.Capital)
	}

	p := decimal.NewFromFloat(in.WinProbability).Div(decimal.NewFromInt(100))
	q := decimal.NewFromInt(1).Sub(p)
	b := decimal.NewFromFloat(in.WinLossRatio)
	ev := b.Mul(p).Sub(q)
	fraction := ev.Div(b)

	out := Sizing{
		Input:             in,
		ExpectedValue:     ev.Round(4).InexactFloat64(),
		PositiveEV:        ev.IsPositive(),
		RecommendedAmount: decimal.Zero,
		HalfKellyAmount:   decimal.Zero,
	}
	if fraction.IsPositive() {
		out.KellyFraction = fraction.Round(4).InexactFloat64()
		out.RecommendedAmount = in.Capital.Mul(fraction).Round(2)
		out.HalfKellyAmount = in.Capital.Mul(fraction).Div(decimal.NewFromInt(2)).Round(2)
	}
	if in.StopLossPct > 0 {
		out.ActualWinLossRatio = decimal.NewFromFloat(in.TakeProfitPct / in.StopLossPct).Round(2).InexactFloat64()
	}
	out.Warning = warningFor(fraction.InexactFloat64(), out.PositiveEV, in.WinProbability)
	return out, nil
}

// FromBacktest uses the backtest win rate as p and take-profit / stop-loss as b.
func FromBacktest(res models.BacktestResult, capital decimal.Decimal, stopLossPct, takeProfitPct float64) (Sizing, error) {
	ratio := defaultWinLossRate
	if stopLossPct > 0 {
		ratio = takeProfitPct / stopLossPct
	}
	return Calculate(Input{
		WinProbability: res.WinRate * 100,
		WinLossRatio:   ratio,
		Capital:        capital,
		StopLossPct:    stopLossPct,
		TakeProfitPct:  takeProfitPct,
	})
}

func warningFor(fraction float64, positiveEV bool, winProb float64) Warning {
	switch {
	case !positiveEV:
		return WarningNegativeEV
	case fraction > 0.5:
		return WarningHighRisk
	case fraction > 0.25:
		return WarningHalfKelly
	case winProb < 55:
		return WarningLowWinRate
	}
	return WarningControlled
}
