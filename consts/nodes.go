package consts

const GraphName = "StockMate-DecisionPipeline"

const (
	// 采集节点
	CollectNode = "collect"

	// 并行分析节点
	SentimentNode = "sentiment"
	TechnicalNode = "technical"
	RiskNode      = "risk"

	// 汇总节点
	AssembleNode = "assemble"
)

// Output keys used when the three branch results are merged into the assemble input.
const (
	SentimentKey = "sentiment"
	TechnicalKey = "technical"
	RiskKey      = "risk"
)
