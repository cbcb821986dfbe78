package consts

const (
	ModeLocal = "local"
	ModeLLM   = "llm"
)

const (
	SentimentSourceLexicon = "lexicon"
	SentimentSourceLLM     = "llm"
	SentimentSourceDefault = "default"
)

const (
	PriceSourceYahoo    = "yahoo"
	PriceSourceLongport = "longport"
	PriceSourceFile     = "file"

	NewsSourceGoogle = "google"
	NewsSourceFile   = "file"
	NewsSourceNone   = "none"
)

const (
	VaRMethodHistorical = "historical"
	VaRMethodVolatility = "volatility"
)
