// Package app builds everything one analysis needs from a Config and keeps it fresh on config change.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/internal/backtest"
	"github.com/dyike/StockMateGo/internal/cache"
	"github.com/dyike/StockMateGo/internal/debug"
	"github.com/dyike/StockMateGo/internal/graph"
	"github.com/dyike/StockMateGo/internal/metrics"
	"github.com/dyike/StockMateGo/internal/risk"
	"github.com/dyike/StockMateGo/internal/sentiment"
	"github.com/dyike/StockMateGo/internal/storage/sqlite"
	"github.com/dyike/StockMateGo/internal/technical"
	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/dataflows"
	"github.com/dyike/StockMateGo/pkg/logger"
)

type Engine struct {
	Config  config.Config
	BuiltAt time.Time
	Version uint64

	Logger       zerolog.Logger
	Metrics      *metrics.Recorder
	Collector    dataflows.Collector
	Quoter       dataflows.Quoter
	Cache        *cache.MarketDataCache
	Backtester   *backtest.Engine
	Orchestrator *graph.Orchestrator
	Store        *sqlite.Store
}

var engineSeq atomic.Uint64

// BuildEngine wires the collectors, analysis components and history store selected by cfg.
// Environment variables override cfg, so secrets never have to live in the config file.
func BuildEngine(cfg config.Config) (*Engine, error) {
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}
	return buildEngine(context.Background(), cfg, lg)
}

func buildEngine(ctx context.Context, cfg config.Config, lg zerolog.Logger) (*Engine, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if err := debug.NewEinoDebugger(cfg, lg).Initialize(ctx); err != nil {
		lg.Warn().Err(err).Msg("eino debug disabled")
	}

	collector, err := dataflows.NewCollector(cfg)
	if err != nil {
		return nil, fmt.Errorf("build collector: %w", err)
	}
	csvDir := ""
	if cfg.CacheEnabled && cfg.Data.PriceSource != consts.PriceSourceFile {
		csvDir = filepath.Join(cfg.DataCacheDir, "csv")
	}
	memCache := cache.NewMarketDataCache(collector, cache.DefaultTTL, csvDir)

	estimator, err := newEstimator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bt := backtest.NewEngine(cfg.Backtest)
	rec := metrics.New()
	orch, err := graph.NewOrchestrator(ctx, graph.Deps{
		Collector:    memCache,
		Estimator:    estimator,
		Evaluator:    technical.NewEvaluator(bt, cfg.Thresholds.ConfidenceFloor),
		Gate:         risk.NewGate(cfg.Thresholds),
		Thresholds:   cfg.Thresholds,
		LookbackDays: cfg.Data.LookbackDays,
		NewsLimit:    cfg.Data.NewsLimit,
		Metrics:      rec,
		Logger:       lg,
	})
	if err != nil {
		return nil, err
	}

	var store *sqlite.Store
	if cfg.DBPath != "" {
		store, err = sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
	}

	return &Engine{
		Config:       cfg,
		BuiltAt:      time.Now(),
		Version:      engineSeq.Add(1),
		Logger:       lg,
		Metrics:      rec,
		Collector:    memCache,
		Quoter:       dataflows.NewQuoter(cfg),
		Cache:        memCache,
		Backtester:   bt,
		Orchestrator: orch,
		Store:        store,
	}, nil
}

func newEstimator(ctx context.Context, cfg config.Config) (sentiment.Estimator, error) {
	if cfg.Mode != consts.ModeLLM {
		return sentiment.NewLexiconEstimator(), nil
	}
	cm, err := sentiment.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm mode: %w", err)
	}
	return sentiment.NewLLMEstimator(ctx, cm)
}

// Analyze runs the pipeline and records the finished report in the history store.
func (e *Engine) Analyze(ctx context.Context, raw string) (*models.AnalysisResult, error) {
	res, err := e.Orchestrator.Analyze(ctx, raw)
	e.exportMetrics()
	if err != nil {
		return nil, err
	}
	if e.Store != nil {
		rec := models.RunRecord{
			RunID:    res.RunID,
			Ticker:   res.Report.Ticker,
			Mode:     e.Config.Mode,
			Report:   res.Report,
			Degraded: res.Technical.Degraded || res.Sentiment.Degraded,
		}
		if err := e.Store.SaveRun(ctx, rec); err != nil {
			e.Logger.Warn().Err(err).Str("run_id", res.RunID).Msg("failed to save run history")
		}
	}
	return res, nil
}

// Backtest replays a preset strategy over the ticker's collected history.
func (e *Engine) Backtest(ctx context.Context, raw, strategy string) (backtest.Result, error) {
	s, err := backtest.ParseStrategy(strategy)
	if err != nil {
		return backtest.Result{}, err
	}
	series, err := e.fetchSeries(ctx, raw)
	if err != nil {
		return backtest.Result{}, err
	}
	return e.Backtester.Simulate(series, s)
}

// MarketData summarizes the collected price history without running the pipeline.
func (e *Engine) MarketData(ctx context.Context, raw string) (PriceStats, error) {
	series, err := e.fetchSeries(ctx, raw)
	if err != nil {
		return PriceStats{}, err
	}
	stats, err := ComputePriceStats(series)
	if err != nil {
		return PriceStats{}, err
	}
	if e.Quoter != nil {
		sym, _ := ticker.Normalize(raw)
		q, err := e.Quoter.Quote(ctx, sym)
		if err != nil {
			e.Logger.Warn().Err(err).Str("ticker", sym.String()).Msg("live quote unavailable")
		} else {
			stats.Quote = q
		}
	}
	return stats, nil
}

func (e *Engine) News(ctx context.Context, raw string) (models.NewsDigest, error) {
	sym, err := ticker.Normalize(raw)
	if err != nil {
		return models.NewsDigest{}, err
	}
	return e.Collector.FetchNews(ctx, sym, e.Config.Data.NewsLimit)
}

func (e *Engine) History(ctx context.Context, params models.HistoryParams) ([]models.RunRecord, int64, error) {
	if e.Store == nil {
		return nil, 0, fmt.Errorf("history store is not configured")
	}
	if params.Ticker != "" {
		sym, err := ticker.Normalize(params.Ticker)
		if err != nil {
			return nil, 0, err
		}
		params.Ticker = sym.String()
	}
	return e.Store.ListRuns(ctx, params)
}

func (e *Engine) Close() error {
	if e.Cache != nil {
		e.Cache.Flush()
	}
	e.exportMetrics()
	return e.Store.Close()
}

func (e *Engine) fetchSeries(ctx context.Context, raw string) (models.MarketSeries, error) {
	sym, err := ticker.Normalize(raw)
	if err != nil {
		return models.MarketSeries{}, err
	}
	return e.Collector.FetchOHLCV(ctx, sym, e.Config.Data.LookbackDays)
}

func (e *Engine) exportMetrics() {
	if e.Config.MetricsFile == "" {
		return
	}
	if err := e.Metrics.WriteTextfile(e.Config.MetricsFile); err != nil {
		e.Logger.Warn().Err(err).Str("path", e.Config.MetricsFile).Msg("failed to write metrics textfile")
	}
}
