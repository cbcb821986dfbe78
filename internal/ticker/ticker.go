// Package ticker resolves the accepted A-share ticker spellings to one canonical symbol.
package ticker

import (
	"fmt"
	"strings"

	"github.com/dyike/StockMateGo/models"
)

type Exchange string

const (
	Shanghai Exchange = "SH"
	Shenzhen Exchange = "SZ"
	Beijing  Exchange = "BJ"
)

// Symbol is a normalized ticker: a 6-digit code plus its exchange.
type Symbol struct {
	Code     string
	Exchange Exchange
}

// String returns the canonical form, e.g. 600000.SH.
func (s Symbol) String() string {
	return s.Code + "." + string(s.Exchange)
}

// YahooSymbol maps to Yahoo Finance suffixes (.SS for Shanghai).
func (s Symbol) YahooSymbol() string {
	if s.Exchange == Shanghai {
		return s.Code + ".SS"
	}
	return s.Code + "." + string(s.Exchange)
}

// LongportSymbol maps to Longport's market suffixes.
func (s Symbol) LongportSymbol() string {
	return s.Code + "." + string(s.Exchange)
}

// 交易所别名，包括 Yahoo 使用的 SS
var exchangeAliases = map[string]Exchange{
	"SH": Shanghai,
	"SS": Shanghai,
	"SZ": Shenzhen,
	"BJ": Beijing,
}

// exchangeForCode maps the leading digit of a code to its exchange.
func exchangeForCode(code string) (Exchange, bool) {
	switch code[0] {
	case '6', '9':
		return Shanghai, true
	case '0', '2', '3':
		return Shenzhen, true
	case '4', '8':
		return Beijing, true
	}
	return "", false
}

// Normalize accepts 600000, 600000.SH, 600000.SS, SH600000, sh.600000 and SH:600000.
func Normalize(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Symbol{}, invalid(raw, "empty ticker")
	}

	code, hint, err := split(s)
	if err != nil {
		return Symbol{}, invalid(raw, err.Error())
	}

	if len(code) != 6 {
		return Symbol{}, invalid(raw, fmt.Sprintf("code must be 6 digits, got %d characters", len(code)))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return Symbol{}, invalid(raw, "code must be numeric")
		}
	}

	exchange, ok := exchangeForCode(code)
	if !ok {
		return Symbol{}, invalid(raw, fmt.Sprintf("no exchange for code prefix %c", code[0]))
	}
	if hint != "" && hint != exchange {
		return Symbol{}, invalid(raw, fmt.Sprintf("code %s belongs to %s, not %s", code, exchange, hint))
	}

	return Symbol{Code: code, Exchange: exchange}, nil
}

// split separates an optional exchange prefix or suffix from the code.
func split(s string) (string, Exchange, error) {
	if i := strings.LastIndexAny(s, ".:"); i >= 0 {
		left, right := s[:i], s[i+1:]
		if ex, ok := exchangeAliases[right]; ok {
			return left, ex, nil
		}
		if ex, ok := exchangeAliases[left]; ok {
			return right, ex, nil
		}
		return "", "", fmt.Errorf("unknown exchange in %q", s)
	}
	if len(s) > 2 {
		if ex, ok := exchangeAliases[s[:2]]; ok {
			return s[2:], ex, nil
		}
	}
	return s, "", nil
}

func invalid(raw, reason string) error {
	return models.NewAnalysisError(models.KindInvalidTicker, nil, "%q: %s", raw, reason)
}
