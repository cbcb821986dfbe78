package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dyike/StockMateGo/internal/position"
)

// InteractiveSession drives the survey menu until the user exits or presses Ctrl-C.
type InteractiveSession struct {
	opts *rootOptions
	ui   *UI
}

func runInteractiveMode(ctx context.Context, opts *rootOptions) error {
	defer opts.close()
	return (&InteractiveSession{opts: opts, ui: NewUI(opts.out)}).Start(ctx)
}

func (s *InteractiveSession) Start(ctx context.Context) error {
	s.ui.Welcome()

	rt, err := s.opts.runtime()
	if err != nil {
		return err
	}
	cfg := rt.Config()
	s.ui.Header(fmt.Sprintf("mode %s · prices %s · news %s · config %s",
		cfg.Mode, cfg.Data.PriceSource, cfg.Data.NewsSource, rt.ConfigPath()))

	for {
		if ctx.Err() != nil {
			return nil
		}
		action, err := PromptForAction()
		if err != nil {
			return interrupted(err)
		}
		if action == ActionExit {
			fmt.Fprintln(s.opts.out, "👋 再见!")
			return nil
		}
		if err := s.handle(ctx, action); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			s.ui.Error(err)
		}
		fmt.Fprintln(s.opts.out)
	}
}

// handle runs one menu action. Pipeline errors are shown and the loop continues.
func (s *InteractiveSession) handle(ctx context.Context, action Action) error {
	// Re-read the engine each time: the runtime swaps it when config.json changes.
	engine, err := s.opts.engine()
	if err != nil {
		return err
	}
	a := NewAnalyzer(engine, s.opts.out, AnalyzerOptions{ResultsDir: engine.Config.ResultsDir})

	switch action {
	case ActionAnalyze:
		tk, err := PromptForTicker()
		if err != nil {
			return err
		}
		save, err := PromptForConfirmation("Save the full result as JSON?")
		if err != nil {
			return err
		}
		a.opts.Save = save
		start := time.Now()
		if err := a.Analyze(ctx, tk); err != nil {
			return err
		}
		s.ui.Success(fmt.Sprintf("analysis finished in %s", time.Since(start).Round(time.Millisecond)))
		return nil

	case ActionData:
		tk, err := PromptForTicker()
		if err != nil {
			return err
		}
		return a.MarketData(ctx, tk)

	case ActionNews:
		tk, err := PromptForTicker()
		if err != nil {
			return err
		}
		return a.News(ctx, tk)

	case ActionBacktest:
		tk, err := PromptForTicker()
		if err != nil {
			return err
		}
		strategy, err := PromptForStrategy()
		if err != nil {
			return err
		}
		return a.Backtest(ctx, tk, strategy)

	case ActionKelly:
		in, err := PromptForKellyInput()
		if err != nil {
			return err
		}
		sizing, err := position.Calculate(in)
		if err != nil {
			return err
		}
		s.ui.Kelly(sizing)
		return nil

	case ActionHistory:
		return a.History(ctx, "", 20, 0)

	case ActionSaved:
		return s.showSaved(a.results)
	}
	return fmt.Errorf("unknown action %q", action)
}

func (s *InteractiveSession) showSaved(rm *ResultsManager) error {
	saved, err := rm.List("")
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		s.ui.Info("no saved results yet, answer yes to the save prompt after an analysis")
		return nil
	}
	rows := make([][]string, 0, len(saved))
	for _, r := range saved {
		rows = append(rows, []string{r.SavedAt.Format("2006-01-02 15:04:05"), r.Ticker, string(r.Decision), r.FilePath})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(pendingStyle).
		Headers("saved", "ticker", "decision", "file").
		Rows(rows...)
	fmt.Fprintln(s.opts.out, t.Render())
	return nil
}

// interrupted turns Ctrl-C at a prompt into a clean exit.
func interrupted(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return nil
	}
	return err
}
