package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/shopspring/decimal"

	"github.com/dyike/StockMateGo/internal/backtest"
	"github.com/dyike/StockMateGo/internal/display"
	"github.com/dyike/StockMateGo/internal/position"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/app"
)

const (
	DefaultCapital       = 100000.0
	DefaultStopLossPct   = 5.0
	DefaultTakeProfitPct = 15.0
)

// Service is the part of app.Engine the command line drives.
type Service interface {
	Analyze(ctx context.Context, raw string) (*models.AnalysisResult, error)
	Backtest(ctx context.Context, raw, strategy string) (backtest.Result, error)
	MarketData(ctx context.Context, raw string) (app.PriceStats, error)
	News(ctx context.Context, raw string) (models.NewsDigest, error)
	History(ctx context.Context, params models.HistoryParams) ([]models.RunRecord, int64, error)
}

type AnalyzerOptions struct {
	JSON       bool
	Save       bool
	ResultsDir string
	Capital    decimal.Decimal
}

// Analyzer runs one command against the engine and prints the outcome as text or JSON.
type Analyzer struct {
	svc     Service
	out     io.Writer
	opts    AnalyzerOptions
	render  *display.Renderer
	results *ResultsManager
}

func NewAnalyzer(svc Service, out io.Writer, opts AnalyzerOptions) *Analyzer {
	if opts.Capital.IsZero() {
		opts.Capital = decimal.NewFromFloat(DefaultCapital)
	}
	return &Analyzer{
		svc:     svc,
		out:     out,
		opts:    opts,
		render:  display.New(out),
		results: NewResultsManager(opts.ResultsDir),
	}
}

// analyzeOutput is the --json shape: the canonical report plus sizing for Buy decisions.
type analyzeOutput struct {
	Report models.StockAnalysisReport `json:"report"`
	RunID  string                     `json:"run_id"`
	Kelly  *position.Sizing           `json:"kelly,omitempty"`
}

func (a *Analyzer) Analyze(ctx context.Context, raw string) error {
	res, err := a.svc.Analyze(ctx, raw)
	if err != nil {
		return a.fail(err)
	}
	sizing := a.sizing(res)

	if a.opts.Save {
		path, err := a.results.Save(res)
		if err != nil {
			a.render.Warning("could not save result: " + err.Error())
		} else if !a.opts.JSON {
			a.render.Info("saved " + path)
		}
	}

	if a.opts.JSON {
		return a.writeJSON(analyzeOutput{Report: res.Report, RunID: res.RunID, Kelly: sizing})
	}
	a.render.Report(res)
	if sizing != nil {
		a.render.Kelly(*sizing)
	}
	return nil
}

// sizing is only computed for Buy decisions; a Wait or Sell has nothing to size.
func (a *Analyzer) sizing(res *models.AnalysisResult) *position.Sizing {
	if res.Report.FinalDecision != models.DecisionBuy {
		return nil
	}
	s, err := position.FromBacktest(res.Technical.Backtest, a.opts.Capital, DefaultStopLossPct, DefaultTakeProfitPct)
	if err != nil {
		return nil
	}
	return &s
}

func (a *Analyzer) MarketData(ctx context.Context, raw string) error {
	stats, err := a.svc.MarketData(ctx, raw)
	if err != nil {
		return a.fail(err)
	}
	if a.opts.JSON {
		return a.writeJSON(stats)
	}
	a.render.PriceStats(stats)
	return nil
}

func (a *Analyzer) News(ctx context.Context, raw string) error {
	digest, err := a.svc.News(ctx, raw)
	if err != nil {
		return a.fail(err)
	}
	if a.opts.JSON {
		items := digest.Items()
		if items == nil {
			items = []models.NewsItem{}
		}
		return a.writeJSON(items)
	}
	a.render.News(raw, digest)
	return nil
}

func (a *Analyzer) Backtest(ctx context.Context, raw, strategy string) error {
	res, err := a.svc.Backtest(ctx, raw, strategy)
	if err != nil {
		return a.fail(err)
	}
	if a.opts.JSON {
		return a.writeJSON(res)
	}
	a.render.Backtest(raw, res)
	return nil
}

func (a *Analyzer) History(ctx context.Context, tk string, limit int, cursor int64) error {
	runs, next, err := a.svc.History(ctx, models.HistoryParams{Ticker: tk, Limit: limit, Cursor: cursor})
	if err != nil {
		return a.fail(err)
	}
	if a.opts.JSON {
		if runs == nil {
			runs = []models.RunRecord{}
		}
		return a.writeJSON(map[string]any{"runs": runs, "next_cursor": next})
	}
	a.render.History(runs, next)
	return nil
}

// fail prints {kind, message} in JSON mode and hands err back for the exit code.
func (a *Analyzer) fail(err error) error {
	if !a.opts.JSON {
		return err
	}
	if werr := a.writeJSON(map[string]any{"error": models.AsAnalysisError(err)}); werr != nil {
		return err
	}
	return &reportedError{err: err}
}

func (a *Analyzer) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
