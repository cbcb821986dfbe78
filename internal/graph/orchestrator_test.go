package graph

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/internal/backtest"
	"github.com/dyike/StockMateGo/internal/metrics"
	"github.com/dyike/StockMateGo/internal/risk"
	"github.com/dyike/StockMateGo/internal/sentiment"
	"github.com/dyike/StockMateGo/internal/technical"
	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

type fakeCollector struct {
	closes   []float64
	news     []models.NewsItem
	priceErr error
	newsErr  error
}

func (f *fakeCollector) FetchOHLCV(_ context.Context, sym ticker.Symbol, _ int) (models.MarketSeries, error) {
	if f.priceErr != nil {
		return models.MarketSeries{}, f.priceErr
	}
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(f.closes))
	for i, c := range f.closes {
		bars[i] = models.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1e6}
	}
	return models.NewMarketSeries(sym.String(), bars), nil
}

func (f *fakeCollector) FetchNews(_ context.Context, _ ticker.Symbol, limit int) (models.NewsDigest, error) {
	if f.newsErr != nil {
		return models.NewsDigest{}, f.newsErr
	}
	return models.NewNewsDigest(f.news), nil
}

type failingEstimator struct{}

func (failingEstimator) Estimate(context.Context, models.NewsDigest) (models.SentimentResult, error) {
	return models.SentimentResult{}, errors.New("model unavailable")
}

type panickingEstimator struct{}

func (panickingEstimator) Estimate(context.Context, models.NewsDigest) (models.SentimentResult, error) {
	panic("boom")
}

// calm rises slowly with a small zigzag, far below the volatility and drawdown limits.
func calm(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 10*(1+0.002*float64(i)) + 0.02*float64(i%2)
	}
	return out
}

// choppy swings 15% every day.
func choppy(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 10 + 1.5*float64(i%2)
	}
	return out
}

func headlines() []models.NewsItem {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return []models.NewsItem{
		{Published: now, Headline: "浦发银行业绩增长，利好不断", Source: "证券时报"},
		{Published: now.Add(-time.Hour), Headline: "银行板块突破上涨", Source: "财联社"},
	}
}

func newTestOrchestrator(t *testing.T, col *fakeCollector, est sentiment.Estimator) (*Orchestrator, *metrics.Recorder) {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	rec := metrics.New()
	if est == nil {
		est = sentiment.NewLexiconEstimator()
	}
	o, err := NewOrchestrator(context.Background(), Deps{
		Collector:    col,
		Estimator:    est,
		Evaluator:    technical.NewEvaluator(backtest.NewEngine(cfg.Backtest), cfg.Thresholds.ConfidenceFloor),
		Gate:         risk.NewGate(cfg.Thresholds),
		Thresholds:   cfg.Thresholds,
		LookbackDays: cfg.Data.LookbackDays,
		Metrics:      rec,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return o, rec
}

func TestAnalyzeApprovedRun(t *testing.T) {
	o, rec := newTestOrchestrator(t, &fakeCollector{closes: calm(120), news: headlines()}, nil)

	res, err := o.Analyze(context.Background(), "600000")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "600000.SH", res.Report.Ticker)
	assert.Equal(t, models.VerdictApproved, res.Report.RiskAssessment)
	assert.Greater(t, res.Report.SentimentScore, 55.0)
	assert.Equal(t, models.RegimeBull, res.Sentiment.Regime)
	assert.GreaterOrEqual(t, res.Report.VaRValue, 0.0)
	assert.Equal(t, Decide(res.Risk.Verdict, res.Technical.Signal, res.Report.SentimentScore, o.deps.Thresholds), res.Report.FinalDecision)
	assert.Equal(t, []models.Phase{
		models.PhaseCollecting, models.PhaseAnalyzing, models.PhaseRiskGating, models.PhaseAssembling, models.PhaseDone,
	}, res.Phases)

	assert.Equal(t, 1, testutil.CollectAndCount(rec.Registry(), "stockmate_runs_total"))
}

func TestAnalyzeRejectedRunWaits(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeCollector{closes: choppy(120), news: headlines()}, nil)

	res, err := o.Analyze(context.Background(), "sh600000")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictRejected, res.Report.RiskAssessment)
	assert.Equal(t, models.DecisionWait, res.Report.FinalDecision)
	assert.Contains(t, res.Report.Reasoning, "veto applied")
}

func TestAnalyzeEmptyNewsIsNeutral(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeCollector{closes: calm(120)}, nil)

	res, err := o.Analyze(context.Background(), "000001")
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Report.SentimentScore)
	assert.Equal(t, models.RegimeNeutral, res.Sentiment.Regime)
	assert.Empty(t, res.Sentiment.Citations)
	assert.False(t, res.Sentiment.Degraded)
}

func TestAnalyzeSentimentFailureDegrades(t *testing.T) {
	o, rec := newTestOrchestrator(t, &fakeCollector{closes: calm(120), news: headlines()}, failingEstimator{})

	res, err := o.Analyze(context.Background(), "600000")
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Report.SentimentScore)
	assert.True(t, res.Sentiment.Degraded)
	assert.Equal(t, "default", res.Sentiment.Source)
	assert.Contains(t, res.Report.Reasoning, "sentiment (neutral default)")
	assert.Equal(t, 1, testutil.CollectAndCount(rec.Registry(), "stockmate_degraded_total"))
}

func TestAnalyzeShortHistoryDegradesTechnical(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeCollector{closes: calm(10)}, nil)

	res, err := o.Analyze(context.Background(), "600000")
	require.NoError(t, err)
	assert.Equal(t, models.SignalHold, res.Report.TechnicalSignal)
	assert.True(t, res.Technical.Degraded)
	assert.Equal(t, models.DecisionWait, res.Report.FinalDecision)
}

func TestAnalyzeFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		col  *fakeCollector
		want error
	}{
		{"invalid ticker", "12345", &fakeCollector{closes: calm(60)}, models.ErrInvalidTicker},
		{"price fetch", "600000", &fakeCollector{priceErr: errors.New("timeout")}, models.ErrDataUnavailable},
		{"empty prices", "600000", &fakeCollector{}, models.ErrDataUnavailable},
		{"news fetch", "600000", &fakeCollector{closes: calm(60), newsErr: errors.New("503")}, models.ErrDataUnavailable},
		{"two bars", "600000", &fakeCollector{closes: []float64{10, 11}}, models.ErrRiskComputation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(t, tt.col, nil)
			res, err := o.Analyze(context.Background(), tt.raw)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ae *models.AnalysisError
			require.ErrorAs(t, err, &ae)
			assert.NotEmpty(t, ae.Message)
		})
	}
}

func TestAnalyzeRecoversPanics(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeCollector{closes: calm(60)}, panickingEstimator{})

	res, err := o.Analyze(context.Background(), "600000")
	assert.Nil(t, res)
	var ae *models.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, models.KindInternal, ae.Kind)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	col := &fakeCollector{closes: calm(150), news: headlines()}
	o, _ := newTestOrchestrator(t, col, nil)

	var reports []string
	for i := 0; i < 3; i++ {
		res, err := o.Analyze(context.Background(), "600000.SH")
		require.NoError(t, err)
		b, err := json.Marshal(res.Report)
		require.NoError(t, err)
		reports = append(reports, string(b))
	}
	assert.Equal(t, reports[0], reports[1])
	assert.Equal(t, reports[1], reports[2])
}

func TestVetoHoldsAcrossSeries(t *testing.T) {
	for _, amp := range []float64{0.01, 0.05, 0.2, 0.6, 1.5} {
		closes := make([]float64, 90)
		for i := range closes {
			closes[i] = 10 + amp*math.Sin(float64(i)/3) + 0.01*float64(i)
		}
		o, _ := newTestOrchestrator(t, &fakeCollector{closes: closes, news: headlines()}, nil)
		res, err := o.Analyze(context.Background(), "600000")
		require.NoError(t, err)
		if res.Report.RiskAssessment == models.VerdictRejected {
			assert.Equal(t, models.DecisionWait, res.Report.FinalDecision, "amp %v", amp)
		}
		assert.False(t, math.IsNaN(res.Report.SentimentScore))
		assert.GreaterOrEqual(t, res.Report.VaRValue, 0.0)
	}
}
