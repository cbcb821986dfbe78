package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/dyike/StockMateGo/config"
	"github.com/dyike/StockMateGo/consts"
	"github.com/dyike/StockMateGo/models"
)

const llmMaxTokens = 512

var ErrUnparsableReply = errors.New("sentiment reply is not a JSON object")

// NewChatModel creates the chat model configured for llm mode.
func NewChatModel(ctx context.Context, cfg config.Config) (model.BaseChatModel, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		maxTokens := llmMaxTokens
		var temperature float32
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.BackendURL,
			Model:       cfg.LLMModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return cm, nil
	default:
		if cfg.DeepSeekAPIKey == "" {
			return nil, fmt.Errorf("DEEPSEEK_API_KEY is not set")
		}
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.DeepSeekAPIKey,
			BaseURL:     cfg.BackendURL,
			Model:       cfg.LLMModel,
			MaxTokens:   llmMaxTokens,
			Temperature: 0,
		})
		if err != nil {
			return nil, fmt.Errorf("create deepseek model: %w", err)
		}
		return cm, nil
	}
}

// llmReply is the raw model answer before coercion.
type llmReply struct {
	Score     any    `json:"score"`
	Regime    string `json:"regime"`
	Citations []any  `json:"citations"`
}

// LLMEstimator asks a chat model for a rating. The reply is coerced before use, never trusted as is.
type LLMEstimator struct {
	chain compose.Runnable[map[string]any, *llmReply]
}

func NewLLMEstimator(ctx context.Context, cm model.BaseChatModel) (*LLMEstimator, error) {
	system, err := LoadPrompt("sentiment")
	if err != nil {
		return nil, err
	}
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage("{headlines}"),
	)

	chain, err := compose.NewChain[map[string]any, *llmReply]().
		AppendChatTemplate(tpl).
		AppendChatModel(cm).
		AppendLambda(compose.InvokableLambda(parseReply)).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile sentiment chain: %w", err)
	}
	return &LLMEstimator{chain: chain}, nil
}

func (e *LLMEstimator) Estimate(ctx context.Context, digest models.NewsDigest) (models.SentimentResult, error) {
	if digest.Empty() {
		return models.NeutralSentiment(consts.SentimentSourceLLM), nil
	}
	items := digest.Items()

	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s", i+1, item.Headline)
		if item.Source != "" {
			fmt.Fprintf(&sb, " (%s)", item.Source)
		}
		sb.WriteString("\n")
	}
	reply, err := e.chain.Invoke(ctx, map[string]any{
		"ticker":    digestTicker(ctx),
		"headlines": sb.String(),
	})
	if err != nil {
		return models.SentimentResult{}, fmt.Errorf("llm sentiment: %w", err)
	}
	return coerce(reply, items)
}

type tickerKey struct{}

// WithTicker attaches the analysed ticker so prompts can name it.
func WithTicker(ctx context.Context, ticker string) context.Context {
	return context.WithValue(ctx, tickerKey{}, ticker)
}

func digestTicker(ctx context.Context) string {
	if v, ok := ctx.Value(tickerKey{}).(string); ok && v != "" {
		return v
	}
	return "the stock"
}

func parseReply(_ context.Context, msg *schema.Message) (*llmReply, error) {
	if msg == nil {
		return nil, ErrUnparsableReply
	}
	content := msg.Content
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: %q", ErrUnparsableReply, truncate(content, 120))
	}
	var reply llmReply
	if err := json.Unmarshal([]byte(content[start:end+1]), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableReply, err)
	}
	return &reply, nil
}

// coerce clamps the score, derives the regime from it and keeps only citations that point at real items.
func coerce(reply *llmReply, items []models.NewsItem) (models.SentimentResult, error) {
	score, ok := toFloat(reply.Score)
	if !ok {
		return models.SentimentResult{}, fmt.Errorf("%w: score %v is not a number", ErrUnparsableReply, reply.Score)
	}
	score = clampScore(score)
	regime := RegimeForScore(score)
	if claimed, ok := models.ParseRegime(reply.Regime); ok && claimed != regime {
		log.Debug().Str("claimed", string(claimed)).Str("derived", string(regime)).Float64("score", score).
			Msg("llm regime disagrees with score, using derived regime")
	}

	seen := map[int]bool{}
	var idx []int
	for _, c := range reply.Citations {
		n, ok := toFloat(c)
		if !ok || n != math.Trunc(n) {
			continue
		}
		i := int(n)
		if i < 1 || i > len(items) || seen[i] {
			continue
		}
		seen[i] = true
		idx = append(idx, i)
	}
	sort.Ints(idx)

	citations := make([]models.Citation, 0, len(idx))
	for _, i := range idx {
		citations = append(citations, models.Citation{Index: i, Headline: items[i-1].Headline})
	}
	return models.SentimentResult{
		Score:     score,
		Regime:    regime,
		Citations: citations,
		Source:    consts.SentimentSourceLLM,
	}, nil
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
