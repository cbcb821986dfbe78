package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dyike/StockMateGo/pkg/indicators"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

type Operator string

const (
	LessThan       Operator = "<"
	LessOrEqual    Operator = "<="
	GreaterThan    Operator = ">"
	GreaterOrEqual Operator = ">="
)

// Indicator series names a Condition can reference.
const (
	IndicatorClose        = "close"
	IndicatorRSI          = "rsi"
	IndicatorMASpread     = "ma_spread"
	IndicatorBollLowerGap = "boll_lower_gap"
	IndicatorBollUpperGap = "boll_upper_gap"
	IndicatorMACDHist     = "macd_hist"
)

// lookbacks is the number of bars each indicator needs before its first value.
var lookbacks = map[string]int{
	IndicatorClose:        1,
	IndicatorRSI:          15,
	IndicatorMASpread:     20,
	IndicatorBollLowerGap: 20,
	IndicatorBollUpperGap: 20,
	IndicatorMACDHist:     34,
}

// Condition compares one indicator series against a fixed threshold, e.g. rsi < 30.
type Condition struct {
	Indicator string   `json:"indicator"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %g", c.Indicator, c.Operator, c.Threshold)
}

func (c Condition) holds(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch c.Operator {
	case LessThan:
		return v < c.Threshold
	case LessOrEqual:
		return v <= c.Threshold
	case GreaterThan:
		return v > c.Threshold
	case GreaterOrEqual:
		return v >= c.Threshold
	}
	return false
}

func (c Condition) validate() error {
	if _, ok := lookbacks[c.Indicator]; !ok {
		return fmt.Errorf("unknown indicator %q", c.Indicator)
	}
	switch c.Operator {
	case LessThan, LessOrEqual, GreaterThan, GreaterOrEqual:
		return nil
	}
	return fmt.Errorf("unknown operator %q", c.Operator)
}

// Strategy opens a position when Entry holds and closes it when Exit holds.
type Strategy struct {
	ID        string    `json:"id"`
	Direction Direction `json:"direction"`
	Entry     Condition `json:"entry"`
	Exit      Condition `json:"exit"`
}

func (s Strategy) Validate() error {
	if s.Direction != Long && s.Direction != Short {
		return fmt.Errorf("strategy %s: unknown direction %q", s.ID, s.Direction)
	}
	if err := s.Entry.validate(); err != nil {
		return fmt.Errorf("strategy %s entry: %w", s.ID, err)
	}
	if err := s.Exit.validate(); err != nil {
		return fmt.Errorf("strategy %s exit: %w", s.ID, err)
	}
	return nil
}

// MinBars is the shortest series the strategy can be simulated on.
func (s Strategy) MinBars() int {
	n := max(lookbacks[s.Entry.Indicator], lookbacks[s.Exit.Indicator])
	return max(n, 2)
}

// Preset strategy ids.
const (
	StrategyRSI            = "RSI"
	StrategyRSIShort       = "RSI_SHORT"
	StrategyMA             = "MA"
	StrategyMAShort        = "MA_SHORT"
	StrategyBollinger      = "Bollinger"
	StrategyBollingerShort = "Bollinger_SHORT"
	StrategyMACD           = "MACD"
)

var presets = map[string]Strategy{
	StrategyRSI: {
		ID: StrategyRSI, Direction: Long,
		Entry: Condition{IndicatorRSI, LessThan, 30},
		Exit:  Condition{IndicatorRSI, GreaterThan, 70},
	},
	StrategyRSIShort: {
		ID: StrategyRSIShort, Direction: Short,
		Entry: Condition{IndicatorRSI, GreaterThan, 70},
		Exit:  Condition{IndicatorRSI, LessThan, 30},
	},
	StrategyMA: {
		ID: StrategyMA, Direction: Long,
		Entry: Condition{IndicatorMASpread, GreaterThan, 0},
		Exit:  Condition{IndicatorMASpread, LessThan, 0},
	},
	StrategyMAShort: {
		ID: StrategyMAShort, Direction: Short,
		Entry: Condition{IndicatorMASpread, LessThan, 0},
		Exit:  Condition{IndicatorMASpread, GreaterThan, 0},
	},
	StrategyBollinger: {
		ID: StrategyBollinger, Direction: Long,
		Entry: Condition{IndicatorBollLowerGap, LessOrEqual, 0},
		Exit:  Condition{IndicatorBollUpperGap, GreaterOrEqual, 0},
	},
	StrategyBollingerShort: {
		ID: StrategyBollingerShort, Direction: Short,
		Entry: Condition{IndicatorBollUpperGap, GreaterOrEqual, 0},
		Exit:  Condition{IndicatorBollLowerGap, LessOrEqual, 0},
	},
	StrategyMACD: {
		ID: StrategyMACD, Direction: Long,
		Entry: Condition{IndicatorMACDHist, GreaterThan, 0},
		Exit:  Condition{IndicatorMACDHist, LessThan, 0},
	},
}

// Preset returns a built-in strategy by id.
func Preset(id string) (Strategy, bool) {
	s, ok := presets[id]
	return s, ok
}

// ParseStrategy resolves a user supplied preset name case-insensitively.
func ParseStrategy(name string) (Strategy, error) {
	want := strings.TrimSpace(name)
	for id, s := range presets {
		if strings.EqualFold(id, want) {
			return s, nil
		}
	}
	return Strategy{}, fmt.Errorf("unknown strategy %q (available: %s)", name, strings.Join(PresetNames(), ", "))
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for id := range presets {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// IndicatorSeries computes the named indicator over closes, aligned bar for bar.
func IndicatorSeries(name string, closes []float64) ([]float64, error) {
	switch name {
	case IndicatorClose:
		out := make([]float64, len(closes))
		copy(out, closes)
		return out, nil
	case IndicatorRSI:
		return indicators.RSI(closes, 14), nil
	case IndicatorMASpread:
		return indicators.Sub(indicators.SMA(closes, 5), indicators.SMA(closes, 20)), nil
	case IndicatorBollLowerGap:
		_, _, lower := indicators.Bollinger(closes, 20, 2)
		return indicators.Sub(closes, lower), nil
	case IndicatorBollUpperGap:
		upper, _, _ := indicators.Bollinger(closes, 20, 2)
		return indicators.Sub(closes, upper), nil
	case IndicatorMACDHist:
		_, _, hist := indicators.MACD(closes, 12, 26, 9)
		return hist, nil
	}
	return nil, fmt.Errorf("unknown indicator %q", name)
}
