package models

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV observation.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// MarketSeries is a chronologically ordered, read-only price history for one ticker.
// Accessors hand out copies so a series can be shared between goroutines.
type MarketSeries struct {
	ticker string
	bars   []Bar
}

// NewMarketSeries copies bars and sorts them oldest first.
func NewMarketSeries(ticker string, bars []Bar) MarketSeries {
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Date.Before(cp[j].Date)
	})
	return MarketSeries{ticker: ticker, bars: cp}
}

func (s MarketSeries) Ticker() string { return s.ticker }

func (s MarketSeries) Len() int { return len(s.bars) }

func (s MarketSeries) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

// Last returns the most recent bar. ok is false for an empty series.
func (s MarketSeries) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

func (s MarketSeries) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

func (s MarketSeries) Opens() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Open
	}
	return out
}

func (s MarketSeries) Volumes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Volume
	}
	return out
}

// NewsItem is a single headline with its body text.
type NewsItem struct {
	Published time.Time `json:"published"`
	Headline  string    `json:"headline"`
	Body      string    `json:"body"`
	Source    string    `json:"source,omitempty"`
	URL       string    `json:"url,omitempty"`
}

// NewsDigest is an ordered list of news items, most recent first. It may be empty.
type NewsDigest struct {
	items []NewsItem
}

// NewNewsDigest copies items and orders them newest first; ties keep input order.
func NewNewsDigest(items []NewsItem) NewsDigest {
	cp := make([]NewsItem, len(items))
	copy(cp, items)
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].Published.After(cp[j].Published)
	})
	return NewsDigest{items: cp}
}

func (d NewsDigest) Len() int { return len(d.items) }

func (d NewsDigest) Empty() bool { return len(d.items) == 0 }

func (d NewsDigest) Items() []NewsItem {
	cp := make([]NewsItem, len(d.items))
	copy(cp, d.items)
	return cp
}

// Snapshot is the immutable collection result every analysis branch reads from.
type Snapshot struct {
	Ticker string
	Series MarketSeries
	News   NewsDigest
}
