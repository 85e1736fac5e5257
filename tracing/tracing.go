// Package tracing offers support for distributed tracing utilizing OpenTelemetry (OTEL).
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tracing

const tracerName = "blazingsql/xchg"

type (
	// Attr is a string-valued span attribute.
	Attr struct {
		Key   string
		Value string
	}
	// EndFunc ends the span, recording the error if any.
	EndFunc func(err error)
)

func A(key, value string) Attr { return Attr{Key: key, Value: value} }
