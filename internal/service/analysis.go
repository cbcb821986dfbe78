package service

import (
	"context"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/dyike/StockMateGo/internal/position"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/bridge"
)

// Version is reported by system.info.
const Version = "0.3.0"

type TickerParams struct {
	Ticker string `json:"ticker"`
	// Async returns immediately and reports the outcome as analysis.done / analysis.error events.
	Async bool `json:"async"`
}

type BacktestParams struct {
	Ticker   string `json:"ticker"`
	Strategy string `json:"strategy"`
}

func SystemInfo(string) (any, error) {
	info := map[string]any{
		"version":    Version,
		"go_version": goruntime.Version(),
		"os":         goruntime.GOOS,
		"arch":       goruntime.GOARCH,
	}
	if rt, err := current(); err == nil {
		cfg := rt.Config()
		info["config_path"] = rt.ConfigPath()
		info["mode"] = cfg.Mode
		if e := rt.Engine(); e != nil {
			info["engine_version"] = e.Version
			info["engine_built_at"] = e.BuiltAt.UTC().Format(time.RFC3339)
		}
	}
	return info, nil
}

func GetConfig(string) (any, error) {
	rt, err := current()
	if err != nil {
		return nil, err
	}
	return rt.Config(), nil
}

// RunAnalysis runs the decision pipeline for params.ticker.
func RunAnalysis(paramsJSON string) (any, error) {
	p, err := tickerParams(paramsJSON)
	if err != nil {
		return nil, err
	}
	e, err := engine()
	if err != nil {
		return nil, err
	}
	if !p.Async {
		return e.Analyze(context.Background(), p.Ticker)
	}

	go func() {
		res, err := e.Analyze(context.Background(), p.Ticker)
		if err != nil {
			bridge.NotifyJSON("analysis.error", map[string]any{
				"ticker": p.Ticker,
				"error":  models.AsAnalysisError(err),
			})
			return
		}
		bridge.NotifyJSON("analysis.done", res)
	}()
	return map[string]string{"status": "started", "ticker": p.Ticker}, nil
}

// GetAnalysisHistory 按 ticker 过滤的书签分页历史
func GetAnalysisHistory(paramsJSON string) (any, error) {
	var params models.HistoryParams
	if err := decodeParams(paramsJSON, &params); err != nil {
		return nil, err
	}
	e, err := engine()
	if err != nil {
		return nil, err
	}
	runs, next, err := e.History(context.Background(), params)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []models.RunRecord{}
	}
	return map[string]any{"runs": runs, "next_cursor": next}, nil
}

func GetMarketStats(paramsJSON string) (any, error) {
	p, err := tickerParams(paramsJSON)
	if err != nil {
		return nil, err
	}
	e, err := engine()
	if err != nil {
		return nil, err
	}
	return e.MarketData(context.Background(), p.Ticker)
}

func GetNews(paramsJSON string) (any, error) {
	p, err := tickerParams(paramsJSON)
	if err != nil {
		return nil, err
	}
	e, err := engine()
	if err != nil {
		return nil, err
	}
	digest, err := e.News(context.Background(), p.Ticker)
	if err != nil {
		return nil, err
	}
	items := digest.Items()
	if items == nil {
		items = []models.NewsItem{}
	}
	return items, nil
}

func RunBacktest(paramsJSON string) (any, error) {
	var p BacktestParams
	if err := decodeParams(paramsJSON, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Strategy) == "" {
		return nil, invalidParams("strategy is required")
	}
	e, err := engine()
	if err != nil {
		return nil, err
	}
	return e.Backtest(context.Background(), p.Ticker, p.Strategy)
}

// CalculateKelly needs no engine, so it works before Initialize.
func CalculateKelly(paramsJSON string) (any, error) {
	var in position.Input
	if err := decodeParams(paramsJSON, &in); err != nil {
		return nil, err
	}
	s, err := position.Calculate(in)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	return s, nil
}

func tickerParams(paramsJSON string) (TickerParams, error) {
	var p TickerParams
	if err := decodeParams(paramsJSON, &p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.Ticker) == "" {
		return p, invalidParams("ticker is required")
	}
	return p, nil
}
