package graph

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/dyike/StockMateGo/internal/metrics"
)

type startKey struct{}

// LoggerCallback logs node lifecycle events and records node latency.
type LoggerCallback struct {
	callbacks.HandlerBuilder

	Logger  zerolog.Logger
	Metrics *metrics.Recorder
}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	cb.Logger.Debug().Str("node", nodeName(info)).Str("component", string(info.Component)).Msg("node start")
	return context.WithValue(ctx, startKey{}, time.Now())
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	elapsed := sinceStart(ctx)
	cb.Metrics.RecordNodeLatency(nodeName(info), elapsed.Seconds())
	cb.Logger.Debug().Str("node", nodeName(info)).Dur("elapsed", elapsed).Msg("node end")
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	cb.Logger.Error().Err(err).Str("node", nodeName(info)).Dur("elapsed", sinceStart(ctx)).Msg("node failed")
	return ctx
}

// The pipeline never streams, but readers must still be closed.
func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func nodeName(info *callbacks.RunInfo) string {
	if info == nil || info.Name == "" {
		return "unknown"
	}
	return info.Name
}

func sinceStart(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(startKey{}).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}
