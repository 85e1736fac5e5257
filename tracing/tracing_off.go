//go:build !oteltracing

// Package tracing offers support for distributed tracing utilizing OpenTelemetry (OTEL).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tracing

import (
	"context"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/core/meta"
)

func IsEnabled() bool { return false }

func Init(*cmn.TracingConf, *meta.Snode, string) {}

func Shutdown() {}

func StartSpan(ctx context.Context, _ string, _ ...Attr) (context.Context, EndFunc) {
	return ctx, func(error) {}
}
