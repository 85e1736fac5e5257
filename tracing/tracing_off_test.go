//go:build !oteltracing

/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tracing

import (
	"context"
	"errors"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/core/meta"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tracing (disabled build)", func() {
	It("should pass the context through", func() {
		Init(&cmn.TracingConf{Enabled: true, ExporterEndpoint: "dummy"}, meta.NewSnode("n1", ""), "v1")
		Expect(IsEnabled()).To(BeFalse())

		type key struct{}
		ctx := context.WithValue(context.Background(), key{}, 1)
		sctx, end := StartSpan(ctx, "op", A("k", "v"))
		Expect(sctx).To(Equal(ctx))
		end(errors.New("ignored"))
		Shutdown()
	})
})
