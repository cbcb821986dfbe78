package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dyike/StockMateGo/internal/display"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true).
			Align(lipgloss.Center).
			Width(80)

	taglineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Italic(true).
			Align(lipgloss.Center).
			Width(80).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(80)

	pendingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	inProgressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	completedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
)

const banner = `
 ____  _             _    __  __       _
/ ___|| |_ ___   ___| | _|  \/  | __ _| |_ ___
\___ \| __/ _ \ / __| |/ / |\/| |/ _' | __/ _ \
 ___) | || (_) | (__|   <| |  | | (_| | ||  __/
|____/ \__\___/ \___|_|\_\_|  |_|\__,_|\__\___|
`

// UI writes the interactive and batch chrome; reports themselves go through display.Renderer.
type UI struct {
	w io.Writer
	*display.Renderer
}

func NewUI(w io.Writer) *UI {
	return &UI{w: w, Renderer: display.New(w)}
}

func (u *UI) Welcome() {
	fmt.Fprintln(u.w, bannerStyle.Render(banner))
	fmt.Fprintln(u.w, taglineStyle.Render("情绪 · 技术 · 风控: A-share decision pipeline"))
}

func (u *UI) Header(text string) {
	fmt.Fprintln(u.w, headerStyle.Render(text))
}

// BatchLine prints one finished batch item as "[done/total] symbol status".
func (u *UI) BatchLine(done, total int, r BatchResult) {
	line := fmt.Sprintf("[%d/%d] %-10s %s", done, total, r.Symbol, statusStyle(r.Status).Render(r.Status.String()))
	if d := r.Duration(); d > 0 {
		line += pendingStyle.Render(fmt.Sprintf(" (%s)", d.Round(10*time.Millisecond)))
	}
	if r.Err != nil {
		line += " " + failedStyle.Render(r.Err.Error())
	} else if r.Result != nil {
		line += " " + string(r.Result.Report.FinalDecision)
	}
	fmt.Fprintln(u.w, line)
}

func (u *UI) BatchSummary(p *BatchProgress) {
	completed, failed, _ := p.Counts()
	u.Header(fmt.Sprintf("Batch finished in %s: %d completed, %d failed, %d total",
		time.Since(p.StartTime).Round(time.Millisecond), completed, failed, p.Total))

	rows := make([][]string, 0, p.Total)
	for _, r := range p.Results() {
		decision, risk, score := "-", "-", "-"
		if r.Result != nil {
			decision = string(r.Result.Report.FinalDecision)
			risk = string(r.Result.Report.RiskAssessment)
			score = fmt.Sprintf("%.2f", r.Result.Report.SentimentScore)
		}
		rows = append(rows, []string{r.Symbol, r.Status.String(), decision, risk, score})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(pendingStyle).
		Headers("symbol", "status", "decision", "risk", "sentiment").
		Rows(rows...)
	fmt.Fprintln(u.w, t.Render())
}

func statusStyle(s BatchStatus) lipgloss.Style {
	switch s {
	case BatchRunning:
		return inProgressStyle
	case BatchCompleted:
		return completedStyle
	case BatchFailed:
		return failedStyle
	}
	return pendingStyle
}
