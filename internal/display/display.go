// Package display renders analysis results for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/dyike/StockMateGo/internal/backtest"
	"github.com/dyike/StockMateGo/internal/position"
	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/app"
)

const width = 80

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1).
			Width(width)

	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	buyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	sellStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	waitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
)

type Renderer struct {
	w io.Writer
}

func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Report prints the decision summary followed by the sub-results it was built from.
func (r *Renderer) Report(res *models.AnalysisResult) {
	rep := res.Report
	fmt.Fprintln(r.w, titleStyle.Render(fmt.Sprintf("📊 %s", rep.Ticker)))

	summary := strings.Join([]string{
		fmt.Sprintf("Final decision:  %s", decisionStyle(rep.FinalDecision).Render(string(rep.FinalDecision))),
		fmt.Sprintf("Risk:            %s", verdictStyle(rep.RiskAssessment).Render(string(rep.RiskAssessment))),
		fmt.Sprintf("Technical:       %s", rep.TechnicalSignal),
		fmt.Sprintf("Sentiment:       %s (%s)", fixed(rep.SentimentScore, 2), res.Sentiment.Regime),
		fmt.Sprintf("VaR (1d):        %s", fixed(rep.VaRValue, 4)),
	}, "\n")
	fmt.Fprintln(r.w, boxStyle.Render(summary))

	r.section("Risk gate")
	rows := [][]string{
		{"volatility", percent(res.Risk.Volatility)},
		{"max drawdown", percent(res.Risk.MaxDrawdown)},
		{"VaR", fixed(res.Risk.VaR, 4)},
	}
	for _, b := range res.Risk.Breaches {
		rows = append(rows, []string{"breach: " + b.Metric, percent(b.Value) + " > " + percent(b.Threshold)})
	}
	r.table([]string{"metric", "value"}, rows)

	r.section("Technical")
	fmt.Fprintf(r.w, "rule %s, raw %s, validated %s\n", res.Technical.Rule, res.Technical.RawSignal, res.Technical.Signal)
	bt := res.Technical.Backtest
	if bt.StrategyID != "" {
		fmt.Fprintf(r.w, "backtest %s: %d trades, win rate %s, total return %s\n",
			bt.StrategyID, bt.TradeCount, percent(bt.WinRate), percent(bt.TotalReturn))
	}
	for _, n := range res.Technical.Notes {
		fmt.Fprintln(r.w, mutedStyle.Render("• "+n))
	}

	r.section("Sentiment")
	fmt.Fprintf(r.w, "score %s, regime %s, source %s\n", fixed(res.Sentiment.Score, 2), res.Sentiment.Regime, res.Sentiment.Source)
	for _, c := range res.Sentiment.Citations {
		fmt.Fprintf(r.w, "  [%d] %s\n", c.Index, c.Headline)
	}

	r.section("Reasoning")
	fmt.Fprintln(r.w, lipgloss.NewStyle().Width(width).Render(rep.Reasoning))
	fmt.Fprintln(r.w, mutedStyle.Render("run "+res.RunID))
}

// Kelly prints position sizing next to a Buy decision.
func (r *Renderer) Kelly(s position.Sizing) {
	r.section("Position sizing (Kelly)")
	r.table([]string{"item", "value"}, [][]string{
		{"win probability", fixed(s.WinProbability, 2) + "%"},
		{"win/loss ratio", fixed(s.WinLossRatio, 2)},
		{"kelly fraction", percent(s.KellyFraction)},
		{"expected value", fixed(s.ExpectedValue, 4)},
		{"full kelly amount", s.RecommendedAmount.StringFixed(2)},
		{"half kelly amount", s.HalfKellyAmount.StringFixed(2)},
	})
	fmt.Fprintln(r.w, s.Warning.Text())
}

func (r *Renderer) PriceStats(s app.PriceStats) {
	fmt.Fprintln(r.w, titleStyle.Render(fmt.Sprintf("📈 %s  %s → %s", s.Ticker, s.From.Format("2006-01-02"), s.To.Format("2006-01-02"))))
	r.table([]string{"metric", "value"}, [][]string{
		{"bars", fmt.Sprint(s.Bars)},
		{"last close", fixed(s.LastClose, 2)},
		{"change", fixed(s.ChangePct, 2) + "%"},
		{"period high", fixed(s.High, 2)},
		{"period low", fixed(s.Low, 2)},
		{"average volume", fixed(s.AvgVolume, 0)},
		{"volatility (ann.)", percent(s.Volatility)},
		{"max drawdown", percent(s.MaxDrawdown)},
	})
	if q := s.Quote; q != nil {
		fmt.Fprintf(r.w, "live %s %s %s (%s%%, %s)\n", q.Name, q.Price.StringFixed(2), q.Currency, fixed(q.ChangePct, 2), q.MarketState)
	}
}

func (r *Renderer) News(ticker string, d models.NewsDigest) {
	fmt.Fprintln(r.w, titleStyle.Render(fmt.Sprintf("📰 %s: %d headlines", ticker, d.Len())))
	if d.Empty() {
		fmt.Fprintln(r.w, mutedStyle.Render("no news"))
		return
	}
	rows := make([][]string, 0, d.Len())
	for i, item := range d.Items() {
		rows = append(rows, []string{fmt.Sprint(i + 1), item.Published.Format("2006-01-02 15:04"), item.Source, item.Headline})
	}
	r.table([]string{"#", "published", "source", "headline"}, rows)
}

func (r *Renderer) Backtest(ticker string, res backtest.Result) {
	fmt.Fprintln(r.w, titleStyle.Render(fmt.Sprintf("🧪 %s  %s", ticker, res.String())))
	if len(res.Trades) == 0 {
		fmt.Fprintln(r.w, mutedStyle.Render("no closed trades"))
		return
	}
	rows := make([][]string, 0, len(res.Trades))
	for i, t := range res.Trades {
		rows = append(rows, []string{
			fmt.Sprint(i + 1), fmt.Sprint(t.EntryIndex), fixed(t.EntryPrice, 2),
			fmt.Sprint(t.ExitIndex), fixed(t.ExitPrice, 2), percent(t.Return),
		})
	}
	r.table([]string{"#", "entry bar", "entry", "exit bar", "exit", "return"}, rows)
}

func (r *Renderer) History(runs []models.RunRecord, next int64) {
	if len(runs) == 0 {
		fmt.Fprintln(r.w, mutedStyle.Render("no analysis history"))
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		degraded := ""
		if run.Degraded {
			degraded = "yes"
		}
		rows = append(rows, []string{
			run.CreatedAt.Local().Format("2006-01-02 15:04"), run.Ticker, run.Mode,
			string(run.Report.FinalDecision), string(run.Report.RiskAssessment),
			fixed(run.Report.SentimentScore, 2), fixed(run.Report.VaRValue, 4), degraded,
		})
	}
	r.table([]string{"time", "ticker", "mode", "decision", "risk", "sentiment", "VaR", "degraded"}, rows)
	if next > 0 {
		fmt.Fprintln(r.w, mutedStyle.Render(fmt.Sprintf("more: --cursor %d", next)))
	}
}

func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.w, errorStyle.Render("❌ Error: "+err.Error()))
}

func (r *Renderer) Info(msg string) {
	fmt.Fprintln(r.w, infoStyle.Render("ℹ️  "+msg))
}

func (r *Renderer) Success(msg string) {
	fmt.Fprintln(r.w, successStyle.Render("✅ "+msg))
}

func (r *Renderer) Warning(msg string) {
	fmt.Fprintln(r.w, waitStyle.Render("⚠️  "+msg))
}

func (r *Renderer) section(title string) {
	fmt.Fprintln(r.w, sectionStyle.Render(title))
}

func (r *Renderer) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(r.w, t.Render())
}

func decisionStyle(d models.Decision) lipgloss.Style {
	switch d {
	case models.DecisionBuy:
		return buyStyle
	case models.DecisionSell:
		return sellStyle
	}
	return waitStyle
}

func verdictStyle(v models.Verdict) lipgloss.Style {
	if v == models.VerdictApproved {
		return buyStyle
	}
	return sellStyle
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
