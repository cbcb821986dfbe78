// Package graph runs the decision pipeline as an eino graph:
//
//	collect -> {sentiment, technical, risk} -> assemble
//
// The three analysis nodes read the same immutable snapshot. assemble only fires once
// all of them have produced an output, and it is the only reader of the sealed risk verdict.
package graph

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/internal/metrics"
	"github.com/dyike/StockMateGo/internal/risk"
	"github.com/dyike/StockMateGo/internal/sentiment"
	"github.com/dyike/StockMateGo/internal/technical"
	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/dataflows"
)

// runState is the graph local state of one run.
type runState struct {
	pipeline *models.PipelineState
	risk     *risk.Lock
}

func newRunState(runID, ticker string) *runState {
	return &runState{
		pipeline: models.NewPipelineState(runID, ticker),
		risk:     &risk.Lock{},
	}
}

type runStateKey struct{}

// riskSealed tells assemble that the verdict is waiting in the run's risk lock.
type riskSealed struct{}

type Deps struct {
	Collector  dataflows.Collector
	Estimator  sentiment.Estimator
	Evaluator  *technical.Evaluator
	Gate       *risk.Gate
	Thresholds config.Thresholds

	LookbackDays int
	NewsLimit    int

	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

type Orchestrator struct {
	deps     Deps
	runnable compose.Runnable[ticker.Symbol, *models.AnalysisResult]
}

func NewOrchestrator(ctx context.Context, deps Deps) (*Orchestrator, error) {
	if deps.Collector == nil || deps.Estimator == nil || deps.Evaluator == nil || deps.Gate == nil {
		return nil, fmt.Errorf("orchestrator: collector, estimator, evaluator and gate are required")
	}
	if deps.NewsLimit <= 0 {
		deps.NewsLimit = dataflows.DefaultNewsLimit
	}
	o := &Orchestrator{deps: deps}

	r, err := o.compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile decision graph: %w", err)
	}
	o.runnable = r
	return o, nil
}

func (o *Orchestrator) compile(ctx context.Context) (compose.Runnable[ticker.Symbol, *models.AnalysisResult], error) {
	g := compose.NewGraph[ticker.Symbol, *models.AnalysisResult](
		compose.WithGenLocalState(func(ctx context.Context) *runState {
			if st, ok := ctx.Value(runStateKey{}).(*runState); ok {
				return st
			}
			return newRunState(uuid.NewString(), "")
		}),
	)

	nodes := []struct {
		key  string
		node *compose.Lambda
		opts []compose.GraphAddNodeOpt
	}{
		{consts.CollectNode, compose.InvokableLambda(o.collectNode), nil},
		{consts.SentimentNode, compose.InvokableLambda(o.sentimentNode), []compose.GraphAddNodeOpt{compose.WithOutputKey(consts.SentimentKey)}},
		{consts.TechnicalNode, compose.InvokableLambda(o.technicalNode), []compose.GraphAddNodeOpt{compose.WithOutputKey(consts.TechnicalKey)}},
		{consts.RiskNode, compose.InvokableLambda(o.riskNode), []compose.GraphAddNodeOpt{compose.WithOutputKey(consts.RiskKey)}},
		{consts.AssembleNode, compose.InvokableLambda(o.assembleNode), nil},
	}
	for _, n := range nodes {
		opts := append([]compose.GraphAddNodeOpt{compose.WithNodeName(n.key)}, n.opts...)
		if err := g.AddLambdaNode(n.key, n.node, opts...); err != nil {
			return nil, err
		}
	}

	edges := [][2]string{
		{compose.START, consts.CollectNode},
		{consts.CollectNode, consts.SentimentNode},
		{consts.CollectNode, consts.TechnicalNode},
		{consts.CollectNode, consts.RiskNode},
		{consts.SentimentNode, consts.AssembleNode},
		{consts.TechnicalNode, consts.AssembleNode},
		{consts.RiskNode, consts.AssembleNode},
		{consts.AssembleNode, compose.END},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}

	return g.Compile(ctx,
		compose.WithGraphName(consts.GraphName),
		compose.WithNodeTriggerMode(compose.AllPredecessor),
	)
}

// Analyze normalizes raw and runs the pipeline for it.
func (o *Orchestrator) Analyze(ctx context.Context, raw string) (*models.AnalysisResult, error) {
	sym, err := ticker.Normalize(raw)
	if err != nil {
		o.deps.Metrics.RecordError(string(models.KindInvalidTicker))
		return nil, err
	}
	return o.Run(ctx, sym)
}

// Run returns either a complete result or an *models.AnalysisError, never both.
func (o *Orchestrator) Run(ctx context.Context, sym ticker.Symbol) (res *models.AnalysisResult, err error) {
	st := newRunState(uuid.NewString(), sym.String())
	logger := o.deps.Logger.With().Str("run_id", st.pipeline.RunID).Str("ticker", sym.String()).Logger()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Str("stack", string(debug.Stack())).Msg("decision pipeline panicked")
			res, err = nil, models.NewAnalysisError(models.KindInternal, nil, "decision pipeline panicked: %v", p)
		}
		if err != nil {
			ae := models.AsAnalysisError(err)
			o.deps.Metrics.RecordError(string(ae.Kind))
			logger.Error().Err(ae).Str("phase", string(st.pipeline.Phase())).Msg("analysis aborted")
			res, err = nil, ae
			return
		}
		o.deps.Metrics.RecordRun(string(res.Report.FinalDecision), string(res.Report.RiskAssessment))
		o.deps.Metrics.RecordVaR(res.Report.Ticker, res.Report.VaRValue)
		logger.Info().
			Str("decision", string(res.Report.FinalDecision)).
			Str("risk", string(res.Report.RiskAssessment)).
			Dur("elapsed", time.Since(start)).
			Msg("analysis finished")
	}()

	ctx = context.WithValue(ctx, runStateKey{}, st)
	out, err := o.runnable.Invoke(ctx, sym, compose.WithCallbacks(&LoggerCallback{
		Logger:  logger,
		Metrics: o.deps.Metrics,
	}))
	// The fatal error recorded by the failing node keeps its kind even if the runner re-wraps it.
	if fatal := st.pipeline.Err(); fatal != nil {
		return nil, fatal
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, models.NewAnalysisError(models.KindInternal, nil, "decision pipeline produced no result")
	}
	return out, nil
}

func (o *Orchestrator) collectNode(ctx context.Context, sym ticker.Symbol) (*models.Snapshot, error) {
	fail := func(err error) (*models.Snapshot, error) {
		_ = compose.ProcessState[*runState](ctx, func(_ context.Context, st *runState) error {
			st.pipeline.Fail(err)
			return nil
		})
		return nil, err
	}

	begin := time.Now()
	series, err := o.deps.Collector.FetchOHLCV(ctx, sym, o.deps.LookbackDays)
	o.deps.Metrics.RecordFetchLatency("ohlcv", time.Since(begin).Seconds())
	if err != nil {
		return fail(asDataUnavailable(sym, "fetch ohlcv", err))
	}
	if series.Len() == 0 {
		return fail(models.NewAnalysisError(models.KindDataUnavailable, nil, "%s: empty price history", sym))
	}

	begin = time.Now()
	news, err := o.deps.Collector.FetchNews(ctx, sym, o.deps.NewsLimit)
	o.deps.Metrics.RecordFetchLatency("news", time.Since(begin).Seconds())
	if err != nil {
		return fail(asDataUnavailable(sym, "fetch news", err))
	}

	err = compose.ProcessState[*runState](ctx, func(_ context.Context, st *runState) error {
		return st.pipeline.Advance(models.PhaseAnalyzing)
	})
	if err != nil {
		return nil, err
	}
	return &models.Snapshot{Ticker: sym.String(), Series: series, News: news}, nil
}

func (o *Orchestrator) sentimentNode(ctx context.Context, snap *models.Snapshot) (models.SentimentResult, error) {
	res, err := o.deps.Estimator.Estimate(sentiment.WithTicker(ctx, snap.Ticker), snap.News)
	if err != nil {
		o.deps.Logger.Warn().Err(err).Str("ticker", snap.Ticker).Msg("sentiment estimator failed, using neutral default")
		o.deps.Metrics.RecordDegraded("sentiment")
		res = models.NeutralSentiment(consts.SentimentSourceDefault)
		res.Degraded = true
	}
	return res, nil
}

func (o *Orchestrator) technicalNode(ctx context.Context, snap *models.Snapshot) (models.TechnicalAssessment, error) {
	ta := o.deps.Evaluator.Evaluate(snap.Series)
	if ta.Degraded {
		o.deps.Metrics.RecordDegraded("technical")
	}
	return ta, nil
}

func (o *Orchestrator) riskNode(ctx context.Context, snap *models.Snapshot) (riskSealed, error) {
	assessment, err := o.deps.Gate.Assess(snap.Series)
	return riskSealed{}, compose.ProcessState[*runState](ctx, func(_ context.Context, st *runState) error {
		if err != nil {
			st.pipeline.Fail(err)
			return err
		}
		if err := st.risk.Seal(assessment); err != nil {
			return err
		}
		return st.pipeline.Advance(models.PhaseRiskGating)
	})
}

func (o *Orchestrator) assembleNode(ctx context.Context, in map[string]any) (*models.AnalysisResult, error) {
	sent, ok := in[consts.SentimentKey].(models.SentimentResult)
	if !ok {
		return nil, fmt.Errorf("assemble: missing %s output", consts.SentimentNode)
	}
	tech, ok := in[consts.TechnicalKey].(models.TechnicalAssessment)
	if !ok {
		return nil, fmt.Errorf("assemble: missing %s output", consts.TechnicalNode)
	}
	if _, ok := in[consts.RiskKey].(riskSealed); !ok {
		return nil, fmt.Errorf("assemble: missing %s output", consts.RiskNode)
	}

	var out *models.AnalysisResult
	err := compose.ProcessState[*runState](ctx, func(_ context.Context, st *runState) error {
		if err := st.pipeline.Advance(models.PhaseAssembling); err != nil {
			return err
		}
		verdict, err := st.risk.Open()
		if err != nil {
			return err
		}
		report := Assemble(st.pipeline.Ticker, sent, tech, verdict, o.deps.Thresholds)
		if err := st.pipeline.Advance(models.PhaseDone); err != nil {
			return err
		}
		out = &models.AnalysisResult{
			RunID:     st.pipeline.RunID,
			Report:    report,
			Technical: tech,
			Risk:      verdict,
			Sentiment: sent,
			Phases:    st.pipeline.History(),
		}
		return nil
	})
	return out, err
}

func asDataUnavailable(sym ticker.Symbol, op string, err error) error {
	if ae := models.AsAnalysisError(err); ae.Kind != models.KindInternal {
		return ae
	}
	return models.NewAnalysisError(models.KindDataUnavailable, err, "%s: %s", sym, op)
}
