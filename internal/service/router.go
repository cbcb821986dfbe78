package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyike/StockMateGo/models"
)

var errInvalidParams = errors.New("invalid params")

type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

type handler func(paramsJSON string) (any, error)

var routes = map[string]handler{
	"system.info":      SystemInfo,
	"config.get":       GetConfig,
	"analysis.run":     RunAnalysis,
	"analysis.history": GetAnalysisHistory,
	"market.stats":     GetMarketStats,
	"market.news":      GetNews,
	"backtest.run":     RunBacktest,
	"position.kelly":   CalculateKelly,
}

// Dispatch routes one call and always answers with a Response document.
func Dispatch(method string, paramsJSON string) string {
	h, ok := routes[method]
	if !ok {
		return jsonResp(404, "Method not found", nil)
	}
	result, err := h(paramsJSON)
	if err != nil {
		return errorResp(err)
	}
	return jsonResp(200, "Ok", result)
}

// errorResp uses 400 for caller mistakes and 500 for everything else.
// Typed analysis errors travel in data as {kind, message}.
func errorResp(err error) string {
	code := 500
	if errors.Is(err, errInvalidParams) || errors.Is(err, models.ErrInvalidTicker) {
		code = 400
	}
	var ae *models.AnalysisError
	if errors.As(err, &ae) {
		return jsonResp(code, err.Error(), ae)
	}
	return jsonResp(code, err.Error(), nil)
}

func jsonResp(code int, msg string, data any) string {
	resp := Response{Code: code, Msg: msg, Data: data}
	b, err := json.Marshal(resp)
	if err != nil {
		b, _ = json.Marshal(Response{Code: 500, Msg: err.Error()})
	}
	return string(b)
}

func invalidParams(msg string) error {
	return fmt.Errorf("%w: %s", errInvalidParams, msg)
}
