package sentiment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/models"
)

// digest builds a digest whose order matches the given headlines.
func digest(headlines ...string) models.NewsDigest {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	items := make([]models.NewsItem, len(headlines))
	for i, h := range headlines {
		items[i] = models.NewsItem{Headline: h, Published: now.Add(-time.Duration(i) * time.Hour), Source: "wire"}
	}
	return models.NewNewsDigest(items)
}

func TestLexiconEstimate(t *testing.T) {
	tests := []struct {
		name      string
		digest    models.NewsDigest
		score     float64
		regime    models.Regime
		citations []int
	}{
		{"empty digest", digest(), 50, models.RegimeNeutral, []int{}},
		{"chinese positive", digest("公司业绩增长，利润上涨"), 59, models.RegimeBull, []int{1}},
		{"chinese negative", digest("股价下跌，亏损扩大，风险警告"), 38, models.RegimeBear, []int{1}},
		{"english positive", digest("Shares rally as profit grows"), 59, models.RegimeBull, []int{1}},
		{"neutral item not cited", digest("Company holds annual meeting", "Shares rally as profit grows"), 59, models.RegimeBull, []int{2}},
		{"pattern counted once per item", digest("上涨上涨上涨"), 53, models.RegimeNeutral, []int{1}},
		{"two negatives", digest("股价下跌", "亏损"), 44, models.RegimeBear, []int{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLexiconEstimator().Estimate(context.Background(), tt.digest)
			require.NoError(t, err)
			assert.InDelta(t, tt.score, got.Score, 1e-9)
			assert.Equal(t, tt.regime, got.Regime)
			assert.Equal(t, consts.SentimentSourceLexicon, got.Source)
			idx := []int{}
			for _, c := range got.Citations {
				idx = append(idx, c.Index)
			}
			assert.Equal(t, tt.citations, idx)
		})
	}
}

func TestLexiconClamps(t *testing.T) {
	headlines := make([]string, 20)
	for i := range headlines {
		headlines[i] = "股价下跌 亏损 风险 警告 调整"
	}
	got, err := NewLexiconEstimator().Estimate(context.Background(), digest(headlines...))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Score)
	assert.Equal(t, models.RegimeBear, got.Regime)
}

func TestLexiconIsDeterministic(t *testing.T) {
	d := digest("公司业绩增长", "股价下跌", "Company warns on risk")
	e := NewLexiconEstimator()
	a, err := e.Estimate(context.Background(), d)
	require.NoError(t, err)
	b, err := e.Estimate(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRegimeForScore(t *testing.T) {
	assert.Equal(t, models.RegimeBull, RegimeForScore(55))
	assert.Equal(t, models.RegimeNeutral, RegimeForScore(54.99))
	assert.Equal(t, models.RegimeNeutral, RegimeForScore(45.01))
	assert.Equal(t, models.RegimeBear, RegimeForScore(45))
}

type fakeChatModel struct {
	reply string
	err   error
	input []*schema.Message
	calls int
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestLLMEstimate(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		score     float64
		regime    models.Regime
		citations []int
	}{
		{"well formed", `{"score": 72, "regime": "Bull", "citations": [2, 1, 9, 2]}`, 72, models.RegimeBull, []int{1, 2}},
		{"fenced", "```json\n{\"score\": 40, \"regime\": \"Bear\", \"citations\": [1]}\n```", 40, models.RegimeBear, []int{1}},
		{"score clamped and regime derived", `{"score": 150, "regime": "Bear", "citations": []}`, 100, models.RegimeBull, []int{}},
		{"string score", `{"score": "38.5", "regime": "neutral", "citations": [0, -1, 1.5]}`, 38.5, models.RegimeBear, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := &fakeChatModel{reply: tt.reply}
			est, err := NewLLMEstimator(context.Background(), cm)
			require.NoError(t, err)

			got, err := est.Estimate(WithTicker(context.Background(), "600000.SH"), digest("利好消息", "Shares rally"))
			require.NoError(t, err)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.regime, got.Regime)
			assert.Equal(t, consts.SentimentSourceLLM, got.Source)
			idx := []int{}
			for _, c := range got.Citations {
				idx = append(idx, c.Index)
			}
			assert.Equal(t, tt.citations, idx)

			require.Equal(t, 1, cm.calls)
			require.Len(t, cm.input, 2)
			assert.Contains(t, cm.input[0].Content, "600000.SH")
			assert.True(t, strings.HasPrefix(cm.input[1].Content, "1. 利好消息"))
		})
	}
}

func TestLLMEstimateFailures(t *testing.T) {
	tests := []struct {
		name string
		cm   *fakeChatModel
	}{
		{"model error", &fakeChatModel{err: errors.New("rate limited")}},
		{"not json", &fakeChatModel{reply: "I think it is bullish"}},
		{"score missing", &fakeChatModel{reply: `{"regime": "Bull"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := NewLLMEstimator(context.Background(), tt.cm)
			require.NoError(t, err)
			_, err = est.Estimate(context.Background(), digest("利好消息"))
			assert.Error(t, err)
		})
	}
}

func TestLLMEmptyDigestSkipsModel(t *testing.T) {
	cm := &fakeChatModel{reply: `{"score": 90}`}
	est, err := NewLLMEstimator(context.Background(), cm)
	require.NoError(t, err)
	got, err := est.Estimate(context.Background(), digest())
	require.NoError(t, err)
	assert.Equal(t, models.NeutralSentiment(consts.SentimentSourceLLM), got)
	assert.Zero(t, cm.calls)
}
