package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidTicker            ErrorKind = "InvalidTickerError"
	KindDataUnavailable          ErrorKind = "DataUnavailableError"
	KindBacktestInsufficientData ErrorKind = "BacktestInsufficientDataError"
	KindRiskComputation          ErrorKind = "RiskComputationError"
	KindInternal                 ErrorKind = "InternalError"
)

// AnalysisError is the structured error surfaced to callers instead of a report.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Is matches another *AnalysisError by kind, so errors.Is(err, ErrDataUnavailable) works.
func (e *AnalysisError) Is(target error) bool {
	var t *AnalysisError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func (e *AnalysisError) MarshalJSON() ([]byte, error) {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return json.Marshal(struct {
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
	}{e.Kind, msg})
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidTicker            = &AnalysisError{Kind: KindInvalidTicker}
	ErrDataUnavailable          = &AnalysisError{Kind: KindDataUnavailable}
	ErrBacktestInsufficientData = &AnalysisError{Kind: KindBacktestInsufficientData}
	ErrRiskComputation          = &AnalysisError{Kind: KindRiskComputation}
)

func NewAnalysisError(kind ErrorKind, err error, format string, args ...any) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// AsAnalysisError returns err as an *AnalysisError, wrapping unknown errors as internal.
func AsAnalysisError(err error) *AnalysisError {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	return &AnalysisError{Kind: KindInternal, Message: err.Error()}
}
