/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package transport

import (
	"bytes"
	"net"
	"net/http"
	"time"

	"github.com/shxinding/blazingsql/cmn"
	"github.com/shxinding/blazingsql/cmn/cos"
	"github.com/shxinding/blazingsql/cmn/nlog"
	"github.com/shxinding/blazingsql/core/meta"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

const (
	ua = "xchg/frames"

	maxConnRetries = 3
	connErrWait    = 100 * time.Millisecond
)

// HTTPEndpoint PUTs every frame to <node URL><path>; RxFrames serves the other side.
type HTTPEndpoint struct {
	client *fasthttp.Client
	srv    *fasthttp.Server
	self   *meta.Snode
	sb     *StreamBundle
	path   string
}

// interface guard
var _ Endpoint = (*HTTPEndpoint)(nil)

// NewHTTPEndpoint with a nil dial uses fasthttp's default dialer.
func NewHTTPEndpoint(self *meta.Snode, path string, dial fasthttp.DialFunc) *HTTPEndpoint {
	e := &HTTPEndpoint{
		client: &fasthttp.Client{Name: ua, Dial: dial},
		self:   self,
		path:   path,
	}
	e.sb = NewStreamBundle("http:"+self.ID(), cmn.Rom.Burst(), e.xmit)
	return e
}

func (e *HTTPEndpoint) Send(dst *meta.Snode, hdr *FrameHdr, payload []byte, cb SentCB) error {
	return e.sb.Send(dst, hdr, payload, cb)
}

func (e *HTTPEndpoint) xmit(dst *meta.Snode, hdr *FrameHdr, payload []byte) (err error) {
	req, resp := fasthttp.AcquireRequest(), fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(http.MethodPut)
	req.SetRequestURI(dst.URL() + e.path)
	hdr.Export(req.Header.Set)
	req.SetBodyRaw(payload)

	// a refused connection never delivered the frame, and is the only error retried
	for i := range maxConnRetries {
		if err = e.client.Do(req, resp); err == nil || !cos.IsErrConnectionRefused(err) {
			break
		}
		if cmn.Rom.FastV(4, cos.SmoduleTransport) {
			nlog.Warningln(e.self.String(), "=>", dst.String(), "retry", i+1, "err:", err)
		}
		time.Sleep(connErrWait)
	}
	if err != nil {
		return errors.Wrapf(err, "%s => %s", e.self, dst)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return errors.Errorf("%s => %s: %s: status %d (%s)", e.self, dst, hdr.Tag, code, resp.Body())
	}
	return nil
}

// Serve runs RxFrames(sink) on ln until Close. Request bodies (frames) are capped
// at transport.max_frame_size.
func (e *HTTPEndpoint) Serve(ln net.Listener, sink Sink) error {
	e.srv = &fasthttp.Server{
		Handler:            RxFrames(e.path, sink),
		Name:               ua,
		MaxRequestBodySize: int(cmn.GCO.Get().Transport.MaxFrameSize),
	}
	return e.srv.Serve(ln)
}

func (e *HTTPEndpoint) Stats() map[string]StreamStats { return e.sb.GetStats() }

func (e *HTTPEndpoint) Close() error {
	err := e.sb.Close()
	if e.srv != nil {
		if errSrv := e.srv.Shutdown(); err == nil {
			err = errSrv
		}
	}
	e.client.CloseIdleConnections()
	return err
}

// RxFrames is the receive-side handler: one frame per PUT request.
func RxFrames(path string, sink Sink) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !ctx.IsPut() {
			ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
			return
		}
		if path != "" && string(ctx.Path()) != path {
			ctx.Error("not found", fasthttp.StatusNotFound)
			return
		}
		body := ctx.PostBody()
		hdr, err := ImportFrameHdr(func(key string) string { return string(ctx.Request.Header.Peek(key)) },
			int64(len(body)))
		if err != nil {
			ctx.Error(err.Error(), fasthttp.StatusBadRequest)
			return
		}
		if err := sink.RecvFrame(hdr, bytes.NewReader(body)); err != nil {
			status := fasthttp.StatusInternalServerError
			if cmn.IsErrUnknownMessage(err) || cmn.IsErrInvalidHeader(err) || cmn.IsErrBufferIndex(err) {
				status = fasthttp.StatusBadRequest
			}
			ctx.Error(err.Error(), status)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
	}
}
