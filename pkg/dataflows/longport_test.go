package dataflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/internal/ticker"
)

func TestNewLongportCollectorRequiresCredentials(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	_, err := NewLongportCollector(*cfg, nil)
	assert.ErrorIs(t, err, ErrLongportCredentials)
}

func TestLongportCollector_FetchOHLCV(t *testing.T) {
	cfg := config.DefaultConfig()
	client, err := NewLongportCollector(*cfg, RetryConfigForAttempts(1))
	if err != nil {
		t.Skipf("Skipping test due to missing Longport API credentials: %v", err)
	}

	sym, err := ticker.Normalize("600519")
	require.NoError(t, err)

	series, err := client.FetchOHLCV(context.Background(), sym, 60)
	require.NoError(t, err)
	assert.Greater(t, series.Len(), 0)
	for _, b := range series.Bars() {
		t.Logf("%s close=%.2f volume=%.0f", b.Date.Format("2006-01-02"), b.Close, b.Volume)
	}
}
