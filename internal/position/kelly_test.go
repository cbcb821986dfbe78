package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockMateGo/models"
)

func TestCalculate(t *testing.T) {
	capital := decimal.NewFromInt(100000)
	tests := []struct {
		name     string
		prob     float64
		ratio    float64
		fraction float64
		amount   string
		half     string
		ev       float64
		warning  Warning
	}{
		{"high fraction", 68, 2.5, 0.552, "55200", "27600", 1.38, WarningHighRisk},
		{"break even", 40, 1.5, 0, "0", "0", 0, WarningNegativeEV},
		{"negative ev", 35, 1.5, 0, "0", "0", -0.125, WarningNegativeEV},
		{"half kelly advised", 60, 3.0, 0.4667, "46666.67", "23333.33", 1.4, WarningHalfKelly},
		{"low win rate", 50, 2.0, 0.25, "25000", "12500", 0.5, WarningLowWinRate},
		{"controlled", 58, 1.2, 0.23, "23000", "11500", 0.276, WarningControlled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(Input{WinProbability: tt.prob, WinLossRatio: tt.ratio, Capital: capital, StopLossPct: 5, TakeProfitPct: 15})
			require.NoError(t, err)
			assert.InDelta(t, tt.fraction, got.KellyFraction, 1e-9)
			assert.Equal(t, tt.amount, got.RecommendedAmount.String())
			assert.Equal(t, tt.half, got.HalfKellyAmount.String())
			assert.InDelta(t, tt.ev, got.ExpectedValue, 1e-9)
			assert.Equal(t, tt.warning, got.Warning)
			assert.NotEmpty(t, got.Warning.Text())
			assert.Equal(t, 3.0, got.ActualWinLossRatio)
		})
	}
}

func TestCalculateRejectsBadInput(t *testing.T) {
	_, err := Calculate(Input{WinProbability: 120, WinLossRatio: 2, Capital: decimal.NewFromInt(1)})
	assert.Error(t, err)
	_, err = Calculate(Input{WinProbability: 50, WinLossRatio: 0, Capital: decimal.NewFromInt(1)})
	assert.Error(t, err)
	_, err = Calculate(Input{WinProbability: 50, WinLossRatio: 2, Capital: decimal.NewFromInt(-1)})
	assert.Error(t, err)
}

func TestFromBacktest(t *testing.T) {
	got, err := FromBacktest(models.BacktestResult{WinRate: 0.6, TradeCount: 10}, decimal.NewFromInt(50000), 5, 15)
	require.NoError(t, err)
	assert.Equal(t, 60.0, got.WinProbability)
	assert.Equal(t, 3.0, got.WinLossRatio)
	assert.Equal(t, WarningHalfKelly, got.Warning)

	fallback, err := FromBacktest(models.BacktestResult{WinRate: 0.6}, decimal.NewFromInt(50000), 0, 15)
	require.NoError(t, err)
	assert.Equal(t, 2.0, fallback.WinLossRatio)
}
