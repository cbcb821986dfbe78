package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/internal/display"
	"github.com/dyike/StockMateGo/pkg/app"
)

const Version = "0.3.0"

// rootOptions carries the global flags and the lazily built runtime shared by every sub-command.
type rootOptions struct {
	configDir string
	debug     bool
	mode      string

	out     io.Writer
	initial *config.Config
	mgr     *config.Manager
	rt      *app.Runtime
}

// manager loads the persisted config without building an engine, so a broken config can still be edited.
func (o *rootOptions) manager() (*config.Manager, error) {
	if o.mgr != nil {
		return o.mgr, nil
	}
	// .env is optional
	_ = godotenv.Load()

	opts := []config.ManagerOption{config.WithConfigDir(o.configDir)}
	if o.initial != nil {
		opts = append(opts, config.WithInitialConfig(o.initial))
	}
	mgr, err := config.NewManager(opts...)
	if err != nil {
		return nil, err
	}
	o.mgr = mgr
	return mgr, nil
}

func (o *rootOptions) runtime() (*app.Runtime, error) {
	if o.rt != nil {
		return o.rt, nil
	}
	mgr, err := o.manager()
	if err != nil {
		return nil, err
	}
	rt, err := app.NewRuntime(mgr, app.WithBuilder(o.build))
	if err != nil {
		return nil, err
	}
	o.rt = rt
	return rt, nil
}

// build applies the command-line overrides on top of the persisted config.
func (o *rootOptions) build(cfg config.Config) (*app.Engine, error) {
	if o.debug {
		cfg.LogLevel = "debug"
	}
	if o.mode != "" {
		cfg.Mode = o.mode
	}
	return app.BuildEngine(cfg)
}

func (o *rootOptions) engine() (*app.Engine, error) {
	rt, err := o.runtime()
	if err != nil {
		return nil, err
	}
	e := rt.Engine()
	if e == nil {
		return nil, errors.New("engine is not available")
	}
	return e, nil
}

func (o *rootOptions) close() {
	if o.rt != nil {
		o.rt.Close()
		o.rt = nil
	}
}

func newRootCmd(out io.Writer) (*cobra.Command, *rootOptions) {
	opts := &rootOptions{out: out}

	rootCmd := &cobra.Command{
		Use:   "stockmate",
		Short: "StockMate - A-share decision pipeline",
		Long: `StockMate collects price history and news for an A-share ticker, scores sentiment,
evaluates backtested technical signals, gates the result on risk and prints a Buy/Sell/Wait report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start interactive mode
			return runInteractiveMode(cmd.Context(), opts)
		},
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(newAnalyzeCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))

	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "Directory holding config.json (default: user config dir)")

	return rootCmd, opts
}

type analyzeFlags struct {
	backtest    string
	dataOnly    bool
	newsOnly    bool
	batch       string
	json        bool
	save        bool
	concurrency int
	capital     float64
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze [TICKER]",
		Short: "Run the decision pipeline for a ticker",
		Long: `Run the full decision pipeline for an A-share ticker and print the report.
Examples:
  stockmate analyze 600000
  stockmate analyze 000001.SZ --mode llm --json
  stockmate analyze 600000 --backtest MA
  stockmate analyze --batch symbols.txt --concurrency 4`,
		Args: func(cmd *cobra.Command, args []string) error {
			if f.batch != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.dataOnly && f.newsOnly {
				return errors.New("--data-only and --news-only are mutually exclusive")
			}
			if f.capital <= 0 {
				return fmt.Errorf("--capital must be positive, got %v", f.capital)
			}
			defer opts.close()

			engine, err := opts.engine()
			if err != nil {
				return err
			}
			a := NewAnalyzer(engine, opts.out, AnalyzerOptions{
				JSON:       f.json,
				Save:       f.save,
				ResultsDir: engine.Config.ResultsDir,
				Capital:    decimal.NewFromFloat(f.capital),
			})

			ctx := cmd.Context()
			switch {
			case f.batch != "":
				return runBatch(ctx, a, f.batch, f.concurrency, opts.out)
			case f.dataOnly:
				return a.MarketData(ctx, args[0])
			case f.newsOnly:
				return a.News(ctx, args[0])
			case f.backtest != "":
				return a.Backtest(ctx, args[0], f.backtest)
			}
			return a.Analyze(ctx, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", "", "Sentiment mode: local or llm (default: from config)")
	cmd.Flags().StringVar(&f.backtest, "backtest", "", "Run a standalone backtest with the named preset strategy")
	cmd.Flags().BoolVar(&f.dataOnly, "data-only", false, "Only print price statistics")
	cmd.Flags().BoolVar(&f.newsOnly, "news-only", false, "Only print the news digest")
	cmd.Flags().StringVar(&f.batch, "batch", "", "File with one ticker per line")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&f.save, "save", false, "Save the full result as JSON under the results directory")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", DefaultConcurrency, "Concurrent analyses in batch mode")
	cmd.Flags().Float64Var(&f.capital, "capital", DefaultCapital, "Capital used for Kelly position sizing")

	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		cursor int64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history [TICKER]",
		Short: "List previous analysis runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer opts.close()
			engine, err := opts.engine()
			if err != nil {
				return err
			}
			var tk string
			if len(args) == 1 {
				tk = args[0]
			}
			return NewAnalyzer(engine, opts.out, AnalyzerOptions{JSON: asJSON}).History(cmd.Context(), tk, limit, cursor)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "Continue after this row id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(opts.out, "StockMate v%s\n", Version)
			fmt.Fprintln(opts.out, "A-share decision pipeline built on eino")
		},
	}
}

// signalContext cancels on Ctrl-C so in-flight fetches stop promptly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printError(w io.Writer, err error) {
	display.New(w).Error(err)
}
