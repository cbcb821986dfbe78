package cli

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockMateGo/models"
)

func TestParseAndValidateSymbols(t *testing.T) {
	raw, err := ParseSymbols(strings.NewReader("600000, 000001.sz\n# watchlist\n\tsh600036; 600000.SH\nAAPL  300750 # growth\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"600000", "000001.sz", "sh600036", "600000.SH", "AAPL", "300750"}, raw)

	valid, invalid := ValidateSymbols(raw)
	assert.Equal(t, []string{"600000.SH", "000001.SZ", "600036.SH", "300750.SZ"}, valid)
	assert.Equal(t, []string{"AAPL"}, invalid)
}

func TestLoadSymbolsFromMissingFile(t *testing.T) {
	_, err := LoadSymbolsFromFile("/nonexistent/symbols.txt")
	assert.Error(t, err)
}

func TestBatchManagerBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	analyze := func(ctx context.Context, symbol string) (*models.AnalysisResult, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		if symbol == "000001.SZ" {
			return nil, models.NewAnalysisError(models.KindDataUnavailable, nil, "no bars")
		}
		return &models.AnalysisResult{Report: models.StockAnalysisReport{Ticker: symbol, FinalDecision: models.DecisionWait}}, nil
	}

	symbols := []string{"600000.SH", "000001.SZ", "600036.SH", "300750.SZ", "601318.SH", "000858.SZ"}
	bm := NewBatchManager(analyze, 2)

	var updates []int
	bm.OnUpdate(func(done int, r BatchResult) {
		updates = append(updates, done)
	})
	progress := bm.Run(context.Background(), symbols)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, updates)

	completed, failed, running := progress.Counts()
	assert.Equal(t, 5, completed)
	assert.Equal(t, 1, failed)
	assert.Zero(t, running)

	results := progress.Results()
	require.Len(t, results, len(symbols))
	for i, r := range results {
		assert.Equal(t, symbols[i], r.Symbol)
		assert.Positive(t, r.Duration())
	}
	assert.Equal(t, BatchFailed, results[1].Status)
	assert.ErrorIs(t, results[1].Err, models.ErrDataUnavailable)
	assert.Equal(t, "600036.SH", results[2].Result.Report.Ticker)
}

func TestBatchManagerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyze := func(ctx context.Context, symbol string) (*models.AnalysisResult, error) {
		return nil, ctx.Err()
	}
	progress := NewBatchManager(analyze, 1).Run(ctx, []string{"600000.SH", "000001.SZ", "600036.SH"})

	_, failed, _ := progress.Counts()
	assert.Equal(t, 3, failed)
	for _, r := range progress.Results() {
		assert.True(t, errors.Is(r.Err, context.Canceled))
	}
}

func TestNewBatchManagerClampsConcurrency(t *testing.T) {
	assert.Equal(t, DefaultConcurrency, NewBatchManager(nil, 0).Concurrency())
	assert.Equal(t, DefaultConcurrency, NewBatchManager(nil, MaxConcurrency+1).Concurrency())
	assert.Equal(t, 5, NewBatchManager(nil, 5).Concurrency())
}

func TestBatchStatusString(t *testing.T) {
	assert.Equal(t, "✅ Completed", BatchCompleted.String())
	assert.Equal(t, "❓ Unknown", BatchStatus(42).String())
}
