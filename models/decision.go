package models

import "strings"

type Signal string

const (
	SignalBuy  Signal = "Buy"
	SignalSell Signal = "Sell"
	SignalHold Signal = "Hold"
)

type Decision string

const (
	DecisionBuy  Decision = "Buy"
	DecisionSell Decision = "Sell"
	DecisionWait Decision = "Wait"
)

type Verdict string

const (
	VerdictApproved Verdict = "Approved"
	VerdictRejected Verdict = "Rejected"
)

type Regime string

const (
	RegimeBull    Regime = "Bull"
	RegimeBear    Regime = "Bear"
	RegimeNeutral Regime = "Neutral"
)

// ParseRegime accepts the regime name in any letter case.
func ParseRegime(s string) (Regime, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bull", "bullish":
		return RegimeBull, true
	case "bear", "bearish":
		return RegimeBear, true
	case "neutral":
		return RegimeNeutral, true
	}
	return "", false
}

// BacktestResult summarizes closed simulated trades for one strategy.
type BacktestResult struct {
	StrategyID  string  `json:"strategy_id"`
	WinRate     float64 `json:"win_rate"`
	TotalReturn float64 `json:"total_return"`
	TradeCount  int     `json:"trade_count"`
}

type TechnicalAssessment struct {
	Signal          Signal             `json:"signal"`
	RawSignal       Signal             `json:"raw_signal"`
	Rule            string             `json:"rule"`
	IndicatorValues map[string]float64 `json:"indicator_values"`
	Backtest        BacktestResult     `json:"backtest"`
	Degraded        bool               `json:"degraded"`
	Notes           []string           `json:"notes,omitempty"`
}

// Breach records one threshold the risk gate found exceeded.
type Breach struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

type RiskAssessment struct {
	Verdict     Verdict  `json:"verdict"`
	Volatility  float64  `json:"volatility"`
	MaxDrawdown float64  `json:"max_drawdown"`
	VaR         float64  `json:"var_value"`
	Breaches    []Breach `json:"breaches,omitempty"`
}

type Citation struct {
	Index    int    `json:"index"`
	Headline string `json:"headline"`
}

type SentimentResult struct {
	Score     float64    `json:"score"`
	Regime    Regime     `json:"regime"`
	Citations []Citation `json:"citations"`
	Source    string     `json:"source"`
	Degraded  bool       `json:"degraded"`
}

// NeutralSentiment is the explicit default used for empty digests and failed estimators.
func NeutralSentiment(source string) SentimentResult {
	return SentimentResult{
		Score:     50,
		Regime:    RegimeNeutral,
		Citations: []Citation{},
		Source:    source,
	}
}

// StockAnalysisReport is the terminal artifact of one run. Field order is the wire order.
type StockAnalysisReport struct {
	Ticker          string   `json:"ticker"`
	SentimentScore  float64  `json:"sentiment_score"`
	TechnicalSignal Signal   `json:"technical_signal"`
	RiskAssessment  Verdict  `json:"risk_assessment"`
	VaRValue        float64  `json:"var_value"`
	FinalDecision   Decision `json:"final_decision"`
	Reasoning       string   `json:"reasoning"`
}

// AnalysisResult carries the report together with the sub-results it was assembled from.
type AnalysisResult struct {
	RunID     string              `json:"run_id"`
	Report    StockAnalysisReport `json:"report"`
	Technical TechnicalAssessment `json:"technical"`
	Risk      RiskAssessment      `json:"risk"`
	Sentiment SentimentResult     `json:"sentiment"`
	Phases    []Phase             `json:"phases"`
}
