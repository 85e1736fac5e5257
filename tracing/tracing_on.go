//go:build oteltracing

// Package tracing offers support for distributed tracing utilizing OpenTelemetry (OTEL).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tracing

import (
	"context"
	"strings"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

var tp *sdktrace.TracerProvider

// overridden in tests
var newExporter = func(conf *cmn.TracingConf) (sdktrace.SpanExporter, error) {
	options := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(conf.ExporterEndpoint),
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{Enabled: true}),
	}
	if conf.SkipVerify {
		options = append(options, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(context.Background(), options...)
}

func newResource(conf *cmn.TracingConf, snode *meta.Snode, version string) *resource.Resource {
	serviceName := strings.TrimSuffix(conf.ServiceName, "-")
	if serviceName == "" {
		serviceName = "blazingsql"
	}
	r, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName+"-xchg"),
			attribute.String("version", version),
			attribute.String("node", snode.ID()),
		),
	)
	return r
}

func IsEnabled() bool { return tp != nil }

func Init(conf *cmn.TracingConf, snode *meta.Snode, version string) {
	if conf == nil || !conf.Enabled {
		return
	}
	cos.AssertMsg(conf.ExporterEndpoint != "", "exporter endpoint can't be empty")
	exp, err := newExporter(conf)
	cos.AssertNoErr(err)

	tp = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(conf.SamplerProbability))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(conf, snode, version)),
	)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)
	otel.SetTracerProvider(tp)
	nlog.Infof("tracing: exporting to %s (sampler %.2f)", conf.ExporterEndpoint, conf.SamplerProbability)
}

func Shutdown() {
	if tp == nil {
		return
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		nlog.Errorln("tracing shutdown:", err)
	}
}

func StartSpan(ctx context.Context, name string, attrs ...Attr) (context.Context, EndFunc) {
	if tp == nil {
		return ctx, func(error) {}
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kvs = append(kvs, attribute.String(a.Key, a.Value))
	}
	ctx, span := tp.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(kvs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
