package sentiment

import (
	"context"
	"regexp"

	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/models"
)

const (
	baseScore   = 50.0
	patternStep = 3.0
)

// LexiconEstimator scores headlines against fixed bilingual keyword patterns. It is deterministic.
type LexiconEstimator struct {
	positive []*regexp.Regexp
	negative []*regexp.Regexp
}

func NewLexiconEstimator() *LexiconEstimator {
	return &LexiconEstimator{
		positive: []*regexp.Regexp{
			regexp.MustCompile(`(?i)增长|\bgrowth\b|\bgrow(s|ing)?\b`),
			regexp.MustCompile(`(?i)利好|\bupgrade[sd]?\b|\bbullish\b`),
			regexp.MustCompile(`(?i)突破|\bbreakout\b|\brecord high\b`),
			regexp.MustCompile(`(?i)上涨|\b(rise[sn]?|rally|rallie[sd]|surge[sd]?|gain(s|ed)?)\b`),
			regexp.MustCompile(`(?i)盈利|\bprofit(s|able)?\b`),
			regexp.MustCompile(`(?i)业绩|\bearnings beat\b|\bbeats? (estimates|expectations)\b`),
		},
		negative: []*regexp.Regexp{
			regexp.MustCompile(`(?i)下跌|\b(fall(s|ing)?|fell|drop(s|ped)?|decline[sd]?|plunge[sd]?)\b`),
			regexp.MustCompile(`(?i)亏损|\blos(s|ses)\b`),
			regexp.MustCompile(`(?i)风险|\brisks?\b`),
			regexp.MustCompile(`(?i)警告|\bwarn(s|ing|ed)?\b`),
			regexp.MustCompile(`(?i)调整|\b(correction|downgrade[sd]?)\b`),
		},
	}
}

// Estimate adds 3 per positive pattern and subtracts 3 per negative pattern found in each item.
func (e *LexiconEstimator) Estimate(ctx context.Context, digest models.NewsDigest) (models.SentimentResult, error) {
	if digest.Empty() {
		return models.NeutralSentiment(consts.SentimentSourceLexicon), nil
	}

	score := baseScore
	citations := []models.Citation{}
	for i, item := range digest.Items() {
		if err := ctx.Err(); err != nil {
			return models.SentimentResult{}, err
		}
		delta := e.itemDelta(item.Headline + "\n" + item.Body)
		if delta != 0 {
			citations = append(citations, models.Citation{Index: i + 1, Headline: item.Headline})
		}
		score += delta
	}
	score = clampScore(score)

	return models.SentimentResult{
		Score:     score,
		Regime:    RegimeForScore(score),
		Citations: citations,
		Source:    consts.SentimentSourceLexicon,
	}, nil
}

func (e *LexiconEstimator) itemDelta(text string) float64 {
	delta := 0.0
	for _, p := range e.positive {
		if p.MatchString(text) {
			delta += patternStep
		}
	}
	for _, p := range e.negative {
		if p.MatchString(text) {
			delta -= patternStep
		}
	}
	return delta
}
