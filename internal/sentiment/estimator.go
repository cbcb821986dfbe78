// Package sentiment turns a news digest into a 0-100 score and a market regime.
package sentiment

import (
	"context"

	"github.com/dyike/StockMateGo/models"
)

const (
	BullThreshold = 55.0
	BearThreshold = 45.0
)

type Estimator interface {
	Estimate(ctx context.Context, digest models.NewsDigest) (models.SentimentResult, error)
}

// RegimeForScore maps a score to Bull (>= 55), Bear (<= 45) or Neutral.
func RegimeForScore(score float64) models.Regime {
	switch {
	case score >= BullThreshold:
		return models.RegimeBull
	case score <= BearThreshold:
		return models.RegimeBear
	}
	return models.RegimeNeutral
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
