package dataflows

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dyike/StockMateGo/internal/ticker"
	"github.com/dyike/StockMateGo/models"
)

var csvHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// FileCollector serves offline data from the data directory:
//
//	prices/600000.SH.csv  (or .json, a list of bars)
//	news/600000.SH.json   (a list of news items, optional)
type FileCollector struct {
	basePath string
}

func NewFileCollector(basePath string) *FileCollector {
	return &FileCollector{basePath: basePath}
}

func (f *FileCollector) PricePath(sym ticker.Symbol, ext string) string {
	return filepath.Join(f.basePath, "prices", sym.String()+ext)
}

func (f *FileCollector) NewsPath(sym ticker.Symbol) string {
	return filepath.Join(f.basePath, "news", sym.String()+".json")
}

// FetchOHLCV keeps the bars within lookbackDays of the newest bar in the file.
func (f *FileCollector) FetchOHLCV(ctx context.Context, sym ticker.Symbol, lookbackDays int) (models.MarketSeries, error) {
	if err := ctx.Err(); err != nil {
		return models.MarketSeries{}, err
	}

	var bars []models.Bar
	var err error
	if path := f.PricePath(sym, ".csv"); fileExists(path) {
		bars, err = ReadBarsCSV(path)
	} else if path := f.PricePath(sym, ".json"); fileExists(path) {
		err = loadJSON(path, &bars)
	} else {
		return models.MarketSeries{}, dataUnavailable(sym, nil, "no price file under %s", filepath.Join(f.basePath, "prices"))
	}
	if err != nil {
		return models.MarketSeries{}, dataUnavailable(sym, err, "read price file")
	}

	series := models.NewMarketSeries(sym.String(), bars)
	last, ok := series.Last()
	if !ok {
		return models.MarketSeries{}, dataUnavailable(sym, nil, "price file is empty")
	}
	if lookbackDays > 0 {
		cutoff := last.Date.AddDate(0, 0, -lookbackDays)
		kept := make([]models.Bar, 0, series.Len())
		for _, b := range series.Bars() {
			if !b.Date.Before(cutoff) {
				kept = append(kept, b)
			}
		}
		series = models.NewMarketSeries(sym.String(), kept)
	}
	return series, nil
}

// FetchNews treats a missing news file as an empty digest.
func (f *FileCollector) FetchNews(ctx context.Context, sym ticker.Symbol, limit int) (models.NewsDigest, error) {
	if err := ctx.Err(); err != nil {
		return models.NewsDigest{}, err
	}
	path := f.NewsPath(sym)
	if !fileExists(path) {
		return models.NewNewsDigest(nil), nil
	}
	var items []models.NewsItem
	if err := loadJSON(path, &items); err != nil {
		return models.NewsDigest{}, dataUnavailable(sym, err, "read news file")
	}
	digest := models.NewNewsDigest(items)
	if limit > 0 && digest.Len() > limit {
		digest = models.NewNewsDigest(digest.Items()[:limit])
	}
	return digest, nil
}

// WriteBarsCSV writes bars oldest first with a header row.
func WriteBarsCSV(path string, bars []models.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, b := range bars {
		row := []string{
			b.Date.Format("2006-01-02"),
			strconv.FormatFloat(b.Open, 'f', 4, 64),
			strconv.FormatFloat(b.High, 'f', 4, 64),
			strconv.FormatFloat(b.Low, 'f', 4, 64),
			strconv.FormatFloat(b.Close, 'f', 4, 64),
			strconv.FormatFloat(b.Volume, 'f', 0, 64),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadBarsCSV reads Date,Open,High,Low,Close,Volume rows. Column order follows the header.
func ReadBarsCSV(path string) ([]models.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, errors.New("no data in CSV file")
	}

	cols := map[string]int{}
	for i, h := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range csvHeader {
		if _, ok := cols[strings.ToLower(want)]; !ok {
			return nil, fmt.Errorf("CSV header is missing column %q", want)
		}
	}

	bars := make([]models.Bar, 0, len(records)-1)
	for line, record := range records[1:] {
		field := func(name string) string { return strings.TrimSpace(record[cols[name]]) }
		date, err := parseDate(field("date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}
		var b models.Bar
		b.Date = date
		for name, dst := range map[string]*float64{"open": &b.Open, "high": &b.High, "low": &b.Low, "close": &b.Close, "volume": &b.Volume} {
			v, err := strconv.ParseFloat(field(name), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s: %w", line+2, name, err)
			}
			*dst = v
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006/01/02", "20060102", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
