package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/dataflows"
)

type cliRun struct {
	stdout string
	stderr string
	code   int
}

// offlineSetup returns a config dir whose config reads prices from CSV files and has no news source.
func offlineSetup(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfigWithRoot(dir)
	cfg.Data.PriceSource = consts.PriceSourceFile
	cfg.Data.NewsSource = consts.NewsSourceNone
	cfg.LogLevel = "error"
	return dir, cfg
}

func writePrices(t *testing.T, cfg *config.Config, raw string, n int) {
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

func runCLI(t *testing.T, dir string, cfg *config.Config, args ...string) cliRun {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), append([]string{"--config-dir", dir}, args...), &stdout, &stderr, cfg)
	return cliRun{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"invalid ticker", models.NewAnalysisError(models.KindInvalidTicker, nil, "bad"), ExitInvalid},
		{"data unavailable", models.NewAnalysisError(models.KindDataUnavailable, nil, "no bars"), ExitDataFailure},
		{"risk computation", models.NewAnalysisError(models.KindRiskComputation, nil, "two bars"), ExitDataFailure},
		{"backtest history", models.NewAnalysisError(models.KindBacktestInsufficientData, nil, "short"), ExitDataFailure},
		{"wrapped", fmt.Errorf("batch: %w", models.NewAnalysisError(models.KindDataUnavailable, nil, "x")), ExitDataFailure},
		{"reported", &reportedError{err: models.NewAnalysisError(models.KindDataUnavailable, nil, "x")}, ExitDataFailure},
		{"internal", models.NewAnalysisError(models.KindInternal, nil, "panic"), ExitInvalid},
		{"plain", errors.New("unknown flag"), ExitInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestAnalyzeJSONThenHistory(t *testing.T) {
	dir, cfg := offlineSetup(t)
	writePrices(t, cfg, "600000", 120)

	run := runCLI(t, dir, cfg, "analyze", "600000", "--json")
	require.Equal(t, ExitOK, run.code, run.stderr)

	var out struct {
		Report models.StockAnalysisReport `json:"report"`
		RunID  string                     `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(run.stdout), &out))
	assert.Equal(t, "600000.SH", out.Report.Ticker)
	assert.Equal(t, 50.0, out.Report.SentimentScore)
	assert.NotEmpty(t, out.RunID)
	assert.Contains(t, []models.Decision{models.DecisionBuy, models.DecisionSell, models.DecisionWait}, out.Report.FinalDecision)

	run = runCLI(t, dir, cfg, "history", "600000", "--json")
	require.Equal(t, ExitOK, run.code, run.stderr)
	var hist struct {
		Runs []models.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(run.stdout), &hist))
	require.Len(t, hist.Runs, 1)
	assert.Equal(t, out.RunID, hist.Runs[0].RunID)
	assert.Equal(t, out.Report, hist.Runs[0].Report)
}

func TestAnalyzeErrorsExitCodes(t *testing.T) {
	dir, cfg := offlineSetup(t)

	run := runCLI(t, dir, cfg, "analyze", "000001", "--json")
	assert.Equal(t, ExitDataFailure, run.code)
	var body struct {
		Error struct {
			Kind    models.ErrorKind `json:"kind"`
			Message string           `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(run.stdout), &body))
	assert.Equal(t, models.KindDataUnavailable, body.Error.Kind)
	assert.Empty(t, run.stderr)

	run = runCLI(t, dir, cfg, "analyze", "not-a-ticker")
	assert.Equal(t, ExitInvalid, run.code)
	assert.Contains(t, run.stderr, string(models.KindInvalidTicker))

	run = runCLI(t, dir, cfg, "analyze")
	assert.Equal(t, ExitInvalid, run.code)

	run = runCLI(t, dir, cfg, "analyze", "600000", "--data-only", "--news-only")
	assert.Equal(t, ExitInvalid, run.code)
	assert.Contains(t, run.stderr, "mutually exclusive")
}

func TestAnalyzeDataOnlyAndBacktest(t *testing.T) {
	dir, cfg := offlineSetup(t)
	writePrices(t, cfg, "000001.SZ", 60)

	run := runCLI(t, dir, cfg, "analyze", "000001.SZ", "--data-only", "--json")
	require.Equal(t, ExitOK, run.code, run.stderr)
	var stats struct {
		Ticker string `json:"ticker"`
		Bars   int    `json:"bars"`
	}
	require.NoError(t, json.Unmarshal([]byte(run.stdout), &stats))
	assert.Equal(t, "000001.SZ", stats.Ticker)
	assert.Equal(t, 60, stats.Bars)

	run = runCLI(t, dir, cfg, "analyze", "000001.SZ", "--backtest", "ma")
	require.Equal(t, ExitOK, run.code, run.stderr)
	assert.Contains(t, run.stdout, "MA:")

	run = runCLI(t, dir, cfg, "analyze", "000001.SZ", "--backtest", "turtle")
	assert.Equal(t, ExitInvalid, run.code)

	// MACD needs more bars than the file holds.
	writePrices(t, cfg, "000002.SZ", 20)
	run = runCLI(t, dir, cfg, "analyze", "000002.SZ", "--backtest", "macd")
	assert.Equal(t, ExitDataFailure, run.code)
}

func TestAnalyzeBatch(t *testing.T) {
	dir, cfg := offlineSetup(t)
	writePrices(t, cfg, "600000", 120)
	writePrices(t, cfg, "000001", 120)

	list := filepath.Join(dir, "symbols.txt")
	require.NoError(t, os.WriteFile(list, []byte("600000, 000001\n# comment\nbogus\n600000.SH\n"), 0o644))

	run := runCLI(t, dir, cfg, "analyze", "--batch", list, "--concurrency", "2", "--json")
	require.Equal(t, ExitOK, run.code, run.stderr)

	var items []struct {
		Symbol string                      `json:"symbol"`
		Report *models.StockAnalysisReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(run.stdout), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "600000.SH", items[0].Symbol)
	assert.Equal(t, "000001.SZ", items[1].Symbol)
	for _, it := range items {
		require.NotNil(t, it.Report)
	}

	require.NoError(t, os.WriteFile(list, []byte("600000\n300750\n"), 0o644))
	run = runCLI(t, dir, cfg, "analyze", "--batch", list)
	assert.Equal(t, ExitDataFailure, run.code)
	assert.Contains(t, run.stdout, "300750.SZ")
	assert.Contains(t, run.stderr, "1 of 2 analyses failed")
}

func TestConfigCommands(t *testing.T) {
	dir, cfg := offlineSetup(t)

	run := runCLI(t, dir, cfg, "config", "path")
	require.Equal(t, ExitOK, run.code, run.stderr)
	assert.Equal(t, filepath.Join(dir, "config.json")+"\n", run.stdout)

	run = runCLI(t, dir, cfg, "config", "set", `{"thresholds":{"volatility":0.4}}`)
	require.Equal(t, ExitOK, run.code, run.stderr)

	run = runCLI(t, dir, cfg, "config", "show")
	require.Equal(t, ExitOK, run.code, run.stderr)
	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(run.stdout), &shown))
	assert.Equal(t, 0.4, shown.Thresholds.Volatility)
	assert.Equal(t, consts.PriceSourceFile, shown.Data.PriceSource)

	run = runCLI(t, dir, cfg, "config", "set", `{"mode":"telepathy"}`)
	assert.Equal(t, ExitInvalid, run.code)

	run = runCLI(t, dir, cfg, "config", "validate")
	assert.Equal(t, ExitOK, run.code, run.stderr)
	assert.Contains(t, run.stdout, "Checking values... ✅")
}

func TestVersion(t *testing.T) {
	run := runCLI(t, t.TempDir(), nil, "version")
	assert.Equal(t, ExitOK, run.code)
	assert.Contains(t, run.stdout, "StockMate v"+Version)
}
