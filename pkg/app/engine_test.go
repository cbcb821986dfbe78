package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/dataflows"
)

func offlineConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := *config.DefaultConfigWithRoot(t.TempDir())
	cfg.Data.PriceSource = consts.PriceSourceFile
	cfg.Data.NewsSource = consts.NewsSourceNone
	return cfg
}

func writePrices(t *testing.T, cfg config.Config, raw string, n int) {
	t.Helper()
	sym, err := ticker.Normalize(raw)
	require.NoError(t, err)

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		c := 10*(1+0.002*float64(i)) + 0.03*float64(i%3)
		bars[i] = models.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: float64(1000 + i)}
	}
	path := dataflows.NewFileCollector(cfg.DataDir).PricePath(sym, ".csv")
	require.NoError(t, dataflows.WriteBarsCSV(path, bars))
}

func newTestEngine(t *testing.T, cfg config.Config) *Engine {
	t.Helper()
	e, err := buildEngine(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineAnalyzeRecordsHistory(t *testing.T) {
	cfg := offlineConfig(t)
	writePrices(t, cfg, "600000", 120)
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	res, err := e.Analyze(ctx, "600000")
	require.NoError(t, err)
	assert.Equal(t, "600000.SH", res.Report.Ticker)
	assert.Equal(t, 50.0, res.Report.SentimentScore)

	runs, next, err := e.History(ctx, models.HistoryParams{Ticker: "600000"})
	require.NoError(t, err)
	assert.Zero(t, next)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].RunID)
	assert.Equal(t, res.Report, runs[0].Report)
	assert.Equal(t, consts.ModeLocal, runs[0].Mode)
}

func TestEngineAnalyzeMissingData(t *testing.T) {
	e := newTestEngine(t, offlineConfig(t))

	_, err := e.Analyze(context.Background(), "000001")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)

	_, err = e.Analyze(context.Background(), "not-a-ticker")
	assert.ErrorIs(t, err, models.ErrInvalidTicker)

	runs, _, err := e.History(context.Background(), models.HistoryParams{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngineBacktestAndMarketData(t *testing.T) {
	cfg := offlineConfig(t)
	writePrices(t, cfg, "000001.SZ", 90)
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	res, err := e.Backtest(ctx, "000001", "ma")
	require.NoError(t, err)
	assert.Equal(t, "MA", res.StrategyID)
	assert.Len(t, res.Trades, res.TradeCount)

	_, err = e.Backtest(ctx, "000001", "turtle")
	assert.Error(t, err)

	stats, err := e.MarketData(ctx, "000001")
	require.NoError(t, err)
	assert.Equal(t, 90, stats.Bars)
	assert.Equal(t, "000001.SZ", stats.Ticker)
	assert.Greater(t, stats.High, stats.Low)
	assert.Greater(t, stats.ChangePct, 0.0)
	assert.InDelta(t, 1044.5, stats.AvgVolume, 1e-9)
	assert.Nil(t, stats.Quote)

	digest, err := e.News(ctx, "000001")
	require.NoError(t, err)
	assert.True(t, digest.Empty())
}

type stubQuoter struct {
	info *dataflows.QuoteInfo
	err  error
}

func (q stubQuoter) Quote(context.Context, ticker.Symbol) (*dataflows.QuoteInfo, error) {
	return q.info, q.err
}

func TestEngineMarketDataQuote(t *testing.T) {
	cfg := offlineConfig(t)
	writePrices(t, cfg, "600000", 40)
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	e.Quoter = stubQuoter{info: &dataflows.QuoteInfo{Symbol: "600000.SH", Name: "PUFA BANK"}}
	stats, err := e.MarketData(ctx, "600000")
	require.NoError(t, err)
	require.NotNil(t, stats.Quote)
	assert.Equal(t, "PUFA BANK", stats.Quote.Name)

	// a failing quote never fails the summary
	e.Quoter = stubQuoter{err: errors.New("offline")}
	stats, err = e.MarketData(ctx, "600000")
	require.NoError(t, err)
	assert.Nil(t, stats.Quote)
	assert.Equal(t, 40, stats.Bars)
}

func TestEngineLLMModeNeedsKey(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Mode = consts.ModeLLM
	cfg.DeepSeekAPIKey = ""
	cfg.OpenAIAPIKey = ""

	_, err := buildEngine(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestComputePriceStats(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	series := models.NewMarketSeries("600000.SH", []models.Bar{
		{Date: start, High: 10.5, Low: 9.5, Close: 10, Volume: 100},
		{Date: start.AddDate(0, 0, 1), High: 12.5, Low: 11, Close: 12, Volume: 300},
		{Date: start.AddDate(0, 0, 2), High: 11.2, Low: 8.8, Close: 9, Volume: 200},
	})

	stats, err := ComputePriceStats(series)
	require.NoError(t, err)
	assert.Equal(t, 9.0, stats.LastClose)
	assert.InDelta(t, -10.0, stats.ChangePct, 1e-9)
	assert.Equal(t, 12.5, stats.High)
	assert.Equal(t, 8.8, stats.Low)
	assert.Equal(t, 200.0, stats.AvgVolume)
	assert.InDelta(t, 0.25, stats.MaxDrawdown, 1e-12)

	_, err = ComputePriceStats(models.NewMarketSeries("600000.SH", nil))
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}
