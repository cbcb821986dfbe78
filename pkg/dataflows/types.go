package dataflows

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/StockMateGo/models"
)

// MarketData represents one vendor price bar before conversion.
type MarketData struct {
	Symbol    string          `json:"symbol"`
	Date      time.Time       `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	AdjClose  decimal.Decimal `json:"adj_close"`
	Volume    int64           `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// Bar converts to the float representation used by the analysis code.
func (m *MarketData) Bar() models.Bar {
	return models.Bar{
		Date:   m.Date,
		Open:   m.Open.InexactFloat64(),
		High:   m.High.InexactFloat64(),
		Low:    m.Low.InexactFloat64(),
		Close:  m.Close.InexactFloat64(),
		Volume: float64(m.Volume),
	}
}

// NewsArticle represents a news article
type NewsArticle struct {
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	URL         string            `json:"url"`
	Source      string            `json:"source"`
	PublishedAt time.Time         `json:"published_at"`
	Keywords    []string          `json:"keywords,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (a *NewsArticle) Item() models.NewsItem {
	return models.NewsItem{
		Published: a.PublishedAt,
		Headline:  strings.TrimSpace(a.Title),
		Body:      strings.TrimSpace(a.Content),
		Source:    a.Source,
		URL:       a.URL,
	}
}

// seriesFromMarketData drops bars without a usable close.
func seriesFromMarketData(symbol string, data []*MarketData) models.MarketSeries {
	bars := make([]models.Bar, 0, len(data))
	for _, d := range data {
		if d == nil || !d.Close.IsPositive() {
			continue
		}
		bars = append(bars, d.Bar())
	}
	return models.NewMarketSeries(symbol, bars)
}
