package models

import "time"

// HistoryParams 描述查询历史报告的参数（书签分页）
type HistoryParams struct {
	Ticker string `json:"ticker"`
	Cursor int64  `json:"cursor"` // 上一页最后一条的 row id，0 表示第一页
	Limit  int    `json:"limit"`  // 每页数量，默认 50，最大 200
}

// RunRecord is one persisted analysis run.
type RunRecord struct {
	RowID     int64               `json:"row_id"`
	RunID     string              `json:"run_id"`
	Ticker    string              `json:"ticker"`
	Mode      string              `json:"mode"`
	Report    StockAnalysisReport `json:"report"`
	Degraded  bool                `json:"degraded"`
	CreatedAt time.Time           `json:"created_at"`
}
