// Package observer provides OTEL-based observability for the session
// engine: traces for turn execution and tool dispatch, metrics for turn and
// tool-call counts/durations and open unified-exec sessions, and structured
// logs exported alongside the usual slog output. Configuration comes from
// standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
package observer

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	enginelog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/codexcore/observer"

// Instruments holds every OTEL instrument the orchestrator and model client
// report against.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger enginelog.Logger

	TurnsStarted   metric.Int64Counter
	TurnsCompleted metric.Int64Counter
	TurnsAborted   metric.Int64Counter
	TurnsFailed    metric.Int64Counter

	ToolCalls    metric.Int64Counter
	ToolDuration metric.Float64Histogram

	TokenUsage metric.Int64Counter

	OpenUnifiedExecSessions metric.Int64UpDownCounter
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters. Returns a shutdown function that must be called on application
// exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("codexcore")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	turnsStarted, err := meter.Int64Counter("turn.started", metric.WithDescription("Turns submitted"), metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}
	turnsCompleted, err := meter.Int64Counter("turn.completed", metric.WithDescription("Turns completed"), metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}
	turnsAborted, err := meter.Int64Counter("turn.aborted", metric.WithDescription("Turns interrupted"), metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}
	turnsFailed, err := meter.Int64Counter("turn.failed", metric.WithDescription("Turns that ended in error"), metric.WithUnit("{turn}"))
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter("tool.calls", metric.WithDescription("Tool dispatches"), metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	toolDuration, err := meter.Float64Histogram("tool.duration", metric.WithDescription("Tool dispatch duration"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	tokenUsage, err := meter.Int64Counter("llm.token.usage", metric.WithDescription("Tokens consumed"), metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}
	openSessions, err := meter.Int64UpDownCounter("unified_exec.sessions.open", metric.WithDescription("Open persistent PTY sessions"), metric.WithUnit("{session}"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:                  tracer,
		Meter:                   meter,
		Logger:                  logger,
		TurnsStarted:            turnsStarted,
		TurnsCompleted:          turnsCompleted,
		TurnsAborted:            turnsAborted,
		TurnsFailed:             turnsFailed,
		ToolCalls:               toolCalls,
		ToolDuration:            toolDuration,
		TokenUsage:              tokenUsage,
		OpenUnifiedExecSessions: openSessions,
	}, nil
}

// Instruments satisfies orchestrator.Metrics without importing that package,
// so the session engine's core has no dependency on the observability
// wiring that drives it in production.

func (i *Instruments) TurnStarted(ctx context.Context) {
	i.TurnsStarted.Add(ctx, 1)
}

func (i *Instruments) TurnCompleted(ctx context.Context, tokensTotal int) {
	i.TurnsCompleted.Add(ctx, 1)
	i.TokenUsage.Add(ctx, int64(tokensTotal))
}

func (i *Instruments) TurnAborted(ctx context.Context) {
	i.TurnsAborted.Add(ctx, 1)
}

func (i *Instruments) TurnFailed(ctx context.Context) {
	i.TurnsFailed.Add(ctx, 1)
}

func (i *Instruments) ToolDispatched(ctx context.Context, tool string, d time.Duration) {
	i.ToolCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	i.ToolDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attribute.String("tool", tool)))
}

// Instruments also satisfies unifiedexec.Metrics without importing that
// package.

func (i *Instruments) SessionOpened(ctx context.Context) {
	i.OpenUnifiedExecSessions.Add(ctx, 1)
}

func (i *Instruments) SessionClosed(ctx context.Context) {
	i.OpenUnifiedExecSessions.Add(ctx, -1)
}
