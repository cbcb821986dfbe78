package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dyike/StockMateGo/models"
	"github.com/dyike/StockMateGo/pkg/utils"
)

const savedTimeLayout = "20060102-150405"

// ResultsManager stores full analysis results as JSON plus a markdown summary under <dir>/<ticker>/.
type ResultsManager struct {
	dir string
	now func() time.Time
}

// ResultSummary represents a summary of a saved analysis result
type ResultSummary struct {
	Ticker   string          `json:"ticker"`
	Decision models.Decision `json:"decision"`
	RunID    string          `json:"run_id"`
	SavedAt  time.Time       `json:"saved_at"`
	FilePath string          `json:"file_path"`
	FileSize int64           `json:"file_size"`
}

func NewResultsManager(dir string) *ResultsManager {
	return &ResultsManager{dir: dir, now: time.Now}
}

// Save writes res to <dir>/<ticker>/<timestamp>_<run id prefix>.json and returns the path.
func (rm *ResultsManager) Save(res *models.AnalysisResult) (string, error) {
	if rm.dir == "" {
		return "", errors.New("results directory is not configured")
	}
	dir := filepath.Join(rm.dir, res.Report.Ticker)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	id := res.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	base := fmt.Sprintf("%s_%s", rm.now().Format(savedTimeLayout), id)
	path := filepath.Join(dir, base+".json")

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	if _, err := utils.WriteMarkdown(dir, base+".md", markdownReport(res)); err != nil {
		return path, err
	}
	return path, nil
}

// markdownReport is the human readable companion of the saved JSON.
func markdownReport(res *models.AnalysisResult) string {
	rep := res.Report
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", rep.Ticker, rep.FinalDecision)
	b.WriteString("| field | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| sentiment_score | %.2f |\n", rep.SentimentScore)
	fmt.Fprintf(&b, "| technical_signal | %s |\n", rep.TechnicalSignal)
	fmt.Fprintf(&b, "| risk_assessment | %s |\n", rep.RiskAssessment)
	fmt.Fprintf(&b, "| var_value | %.4f |\n", rep.VaRValue)
	fmt.Fprintf(&b, "| final_decision | %s |\n\n", rep.FinalDecision)
	b.WriteString("## Reasoning\n\n")
	b.WriteString(rep.Reasoning)
	b.WriteString("\n")
	if len(res.Sentiment.Citations) > 0 {
		b.WriteString("\n## Cited headlines\n\n")
		for _, c := range res.Sentiment.Citations {
			fmt.Fprintf(&b, "%d. %s\n", c.Index, c.Headline)
		}
	}
	fmt.Fprintf(&b, "\nrun `%s`\n", res.RunID)
	return b.String()
}

// Load reads a result previously written by Save.
func (rm *ResultsManager) Load(path string) (*models.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res models.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &res, nil
}

// List returns saved results, newest first. An empty ticker lists every ticker.
func (rm *ResultsManager) List(ticker string) ([]ResultSummary, error) {
	root := rm.dir
	if ticker != "" {
		root = filepath.Join(rm.dir, ticker)
	}
	var out []ResultSummary
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		res, err := rm.Load(path)
		if err != nil {
			// skip files we did not write
			return nil
		}
		out = append(out, ResultSummary{
			Ticker:   res.Report.Ticker,
			Decision: res.Report.FinalDecision,
			RunID:    res.RunID,
			SavedAt:  savedAt(path, info),
			FilePath: path,
			FileSize: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

// savedAt prefers the timestamp encoded in the file name over the mtime.
func savedAt(path string, info fs.FileInfo) time.Time {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '_'); i > 0 {
		if t, err := time.ParseInLocation(savedTimeLayout, name[:i], time.Local); err == nil {
			return t
		}
	}
	return info.ModTime()
}
