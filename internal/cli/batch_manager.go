package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

const (
	DefaultConcurrency = 3
	MaxConcurrency     = 10
)

// BatchStatus represents the status of batch analysis item
type BatchStatus int

const (
	BatchPending BatchStatus = iota
	BatchRunning
	BatchCompleted
	BatchFailed
)

func (bs BatchStatus) String() string {
	switch bs {
	case BatchPending:
		return "⏳ Pending"
	case BatchRunning:
		return "🔄 Running"
	case BatchCompleted:
		return "✅ Completed"
	case BatchFailed:
		return "❌ Failed"
	default:
		return "❓ Unknown"
	}
}

// BatchResult is the outcome of one ticker in a batch.
type BatchResult struct {
	Symbol    string
	Status    BatchStatus
	Result    *models.AnalysisResult
	Err       error
	StartTime time.Time
	EndTime   time.Time
}

func (r BatchResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// BatchProgress tracks progress of batch analysis
type BatchProgress struct {
	Total     int
	StartTime time.Time

	mu      sync.RWMutex
	results []BatchResult
}

// Counts returns completed, failed and running items.
func (p *BatchProgress) Counts() (completed, failed, running int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.results {
		switch r.Status {
		case BatchCompleted:
			completed++
		case BatchFailed:
			failed++
		case BatchRunning:
			running++
		}
	}
	return completed, failed, running
}

// Results returns a copy in input order.
func (p *BatchProgress) Results() []BatchResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]BatchResult, len(p.results))
	copy(out, p.results)
	return out
}

func (p *BatchProgress) update(i int, fn func(*BatchResult)) BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.results[i])
	return p.results[i]
}

type AnalyzeFunc func(ctx context.Context, symbol string) (*models.AnalysisResult, error)

// BatchManager runs the pipeline over many tickers with at most concurrency runs in flight.
type BatchManager struct {
	analyze     AnalyzeFunc
	concurrency int
	onUpdate    func(done int, r BatchResult)
}

func NewBatchManager(analyze AnalyzeFunc, concurrency int) *BatchManager {
	if concurrency <= 0 || concurrency > MaxConcurrency {
		concurrency = DefaultConcurrency
	}
	return &BatchManager{analyze: analyze, concurrency: concurrency}
}

// OnUpdate registers a callback invoked after every finished item. Calls are serialized.
func (bm *BatchManager) OnUpdate(fn func(done int, r BatchResult)) {
	bm.onUpdate = fn
}

func (bm *BatchManager) Concurrency() int { return bm.concurrency }

// Run analyzes symbols and blocks until all of them finished or ctx is done.
// Items never started because ctx was cancelled are marked failed with ctx.Err().
func (bm *BatchManager) Run(ctx context.Context, symbols []string) *BatchProgress {
	progress := &BatchProgress{
		Total:     len(symbols),
		StartTime: time.Now(),
		results:   make([]BatchResult, len(symbols)),
	}
	for i, s := range symbols {
		progress.results[i] = BatchResult{Symbol: s, Status: BatchPending}
	}

	var (
		wg       sync.WaitGroup
		notifyMu sync.Mutex
		done     int
	)
	notify := func(r BatchResult) {
		notifyMu.Lock()
		defer notifyMu.Unlock()
		done++
		if bm.onUpdate != nil {
			bm.onUpdate(done, r)
		}
	}

	semaphore := make(chan struct{}, bm.concurrency)
	for i, symbol := range symbols {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			notify(progress.update(i, func(r *BatchResult) {
				r.Status = BatchFailed
				r.Err = ctx.Err()
			}))
			continue
		}

		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			progress.update(i, func(r *BatchResult) {
				r.Status = BatchRunning
				r.StartTime = time.Now()
			})
			res, err := bm.analyze(ctx, symbol)
			notify(progress.update(i, func(r *BatchResult) {
				r.EndTime = time.Now()
				r.Result = res
				r.Err = err
				r.Status = BatchCompleted
				if err != nil {
					r.Status = BatchFailed
				}
			}))
		}(i, symbol)
	}
	wg.Wait()
	return progress
}

// LoadSymbolsFromFile reads tickers separated by newlines, commas or spaces. '#' starts a comment.
func LoadSymbolsFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols file: %w", err)
	}
	defer f.Close()
	return ParseSymbols(f)
}

func ParseSymbols(r io.Reader) ([]string, error) {
	var symbols []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t'
		})
		symbols = append(symbols, fields...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return symbols, nil
}

// ValidateSymbols normalizes every ticker, drops duplicates and returns the rejects separately.
func ValidateSymbols(symbols []string) (valid, invalid []string) {
	seen := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		sym, err := ticker.Normalize(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		key := sym.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		valid = append(valid, key)
	}
	return valid, invalid
}

// runBatch loads, validates and analyzes every ticker in path, then prints a summary.
// The first failure is returned so the exit code reflects it.
func runBatch(ctx context.Context, a *Analyzer, path string, concurrency int, out io.Writer) error {
	raw, err := LoadSymbolsFromFile(path)
	if err != nil {
		return err
	}
	symbols, invalid := ValidateSymbols(raw)
	if len(symbols) == 0 {
		return models.NewAnalysisError(models.KindInvalidTicker, nil, "no valid symbols in %s", path)
	}

	ui := NewUI(out)
	if len(invalid) > 0 {
		ui.Warning(fmt.Sprintf("skipping invalid symbols: %s", strings.Join(invalid, ", ")))
	}

	bm := NewBatchManager(a.svc.Analyze, concurrency)
	if !a.opts.JSON {
		ui.Info(fmt.Sprintf("Starting batch analysis for %d symbols (concurrency %d)", len(symbols), bm.Concurrency()))
		bm.OnUpdate(func(done int, r BatchResult) {
			ui.BatchLine(done, len(symbols), r)
		})
	}
	progress := bm.Run(ctx, symbols)
	results := progress.Results()

	if a.opts.JSON {
		if err := a.writeJSON(batchJSON(results)); err != nil {
			return err
		}
	} else {
		ui.BatchSummary(progress)
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Symbol, r.Err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	first := fmt.Errorf("%d of %d analyses failed: %w", len(errs), len(results), errs[0])
	if a.opts.JSON {
		return &reportedError{err: first}
	}
	return first
}

type batchItem struct {
	Symbol string                      `json:"symbol"`
	Report *models.StockAnalysisReport `json:"report,omitempty"`
	Error  *models.AnalysisError       `json:"error,omitempty"`
}

func batchJSON(results []BatchResult) []batchItem {
	out := make([]batchItem, 0, len(results))
	for _, r := range results {
		item := batchItem{Symbol: r.Symbol}
		if r.Result != nil {
			item.Report = &r.Result.Report
		}
		if r.Err != nil {
			item.Error = models.AsAnalysisError(r.Err)
		}
		out = append(out, item)
	}
	return out
}
