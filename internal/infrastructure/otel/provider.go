// Package otel connects the logger and the identity store spans to an OTLP
// collector.
package otel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/bravo68web/tableidentity/internal/config"
)

const exportTimeout = 5 * time.Second

// ErrDisabled is returned by NewProvider when otel.enabled is off.
var ErrDisabled = errors.New("otel export is disabled")

// Provider owns the log and span pipelines to the collector.
type Provider struct {
	logs   *sdklog.LoggerProvider
	spans  *sdktrace.TracerProvider
	logger log.Logger
	conn   *grpc.ClientConn
}

// pipeline is where records and spans end up. Tests build one around
// in-memory processors.
type pipeline struct {
	logs  sdklog.Processor
	spans sdktrace.SpanProcessor
	conn  *grpc.ClientConn
}

// NewProvider dials the collector at cfg.Endpoint over gRPC, or over HTTP
// when cfg.UseHTTP is set.
func NewProvider(ctx context.Context, cfg *config.OTELConfig) (*Provider, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, ErrDisabled
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	var p *pipeline
	if cfg.UseHTTP {
		p, err = httpPipeline(ctx, cfg)
	} else {
		p, err = grpcPipeline(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to collector %s: %w", cfg.Endpoint, err)
	}
	return newProvider(cfg, res, p), nil
}

func newProvider(cfg *config.OTELConfig, res *resource.Resource, p *pipeline) *Provider {
	logs := sdklog.NewLoggerProvider(sdklog.WithResource(res), sdklog.WithProcessor(p.logs))
	spans := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithSpanProcessor(p.spans),
	)
	return &Provider{
		logs:   logs,
		spans:  spans,
		logger: logs.Logger(cfg.ServiceName),
		conn:   p.conn,
	}
}

func grpcPipeline(ctx context.Context, cfg *config.OTELConfig) (*pipeline, error) {
	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if cfg.Insecure {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, err
	}

	logExp, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn), otlploggrpc.WithHeaders(cfg.Headers))
	if err != nil {
		return nil, multierr.Append(err, conn.Close())
	}
	spanExp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn), otlptracegrpc.WithHeaders(cfg.Headers))
	if err != nil {
		return nil, multierr.Combine(err, logExp.Shutdown(ctx), conn.Close())
	}
	return batched(logExp, spanExp, conn), nil
}

func httpPipeline(ctx context.Context, cfg *config.OTELConfig) (*pipeline, error) {
	logOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint), otlploghttp.WithHeaders(cfg.Headers)}
	spanOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithHeaders(cfg.Headers)}
	if cfg.Insecure {
		logOpts = append(logOpts, otlploghttp.WithInsecure())
		spanOpts = append(spanOpts, otlptracehttp.WithInsecure())
	}

	logExp, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		return nil, err
	}
	spanExp, err := otlptracehttp.New(ctx, spanOpts...)
	if err != nil {
		return nil, multierr.Append(err, logExp.Shutdown(ctx))
	}
	return batched(logExp, spanExp, nil), nil
}

func batched(logs sdklog.Exporter, spans sdktrace.SpanExporter, conn *grpc.ClientConn) *pipeline {
	return &pipeline{
		logs:  sdklog.NewBatchProcessor(logs, sdklog.WithExportTimeout(exportTimeout)),
		spans: sdktrace.NewBatchSpanProcessor(spans, sdktrace.WithExportTimeout(exportTimeout)),
		conn:  conn,
	}
}

// Logger is the OTEL logger the zap bridge emits to.
func (p *Provider) Logger() log.Logger {
	return p.logger
}

func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.spans
}

// ForceFlush exports pending records and spans
func (p *Provider) ForceFlush(ctx context.Context) error {
	return multierr.Append(p.logs.ForceFlush(ctx), p.spans.ForceFlush(ctx))
}

// Shutdown flushes both pipelines, then drops the collector connection.
func (p *Provider) Shutdown(ctx context.Context) error {
	err := multierr.Combine(p.spans.Shutdown(ctx), p.logs.Shutdown(ctx))
	if p.conn != nil {
		err = multierr.Append(err, p.conn.Close())
	}
	return err
}

func (p *Provider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()
	return p.Shutdown(ctx)
}
