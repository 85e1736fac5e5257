// Package stats tracks exchange-layer counters and latencies and exports them
// via Prometheus.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "xchg"

// error kinds (label values)
const (
	ErrSend   = "send"
	ErrRecv   = "recv"
	ErrFinish = "finish"
	ErrPull   = "pull"
)

// Tracker is a per-node set of metrics registered with its own registry.
// A nil *Tracker is valid and ignores all updates.
type Tracker struct {
	reg        *prometheus.Registry
	framesSent prometheus.Counter
	framesRecv prometheus.Counter
	bytesSent  prometheus.Counter
	bytesRecv  prometheus.Counter
	msgsSent   prometheus.Counter
	msgsRecv   *prometheus.CounterVec // route: specific | generic
	errs       *prometheus.CounterVec // kind
	inflight   prometheus.Gauge
	finishLat  prometheus.Histogram
	pullLat    prometheus.Histogram
	totals     *prometheus.GaugeVec // tracker
}

func NewTracker(namespace, node string) *Tracker {
	var (
		labels = prometheus.Labels{"node": node}
		t      = &Tracker{reg: prometheus.NewRegistry()}
	)
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: labels,
		})
	}
	t.framesSent = counter("frames_sent_total", "Number of frames handed to the endpoint and completed")
	t.framesRecv = counter("frames_recv_total", "Number of frames received")
	t.bytesSent = counter("bytes_sent_total", "Wire bytes sent")
	t.bytesRecv = counter("bytes_recv_total", "Wire bytes received")
	t.msgsSent = counter("msgs_sent_total", "Number of logical messages sent (per target)")
	t.msgsRecv = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "msgs_recv_total",
		Help: "Number of logical messages reassembled and routed", ConstLabels: labels,
	}, []string{"route"})
	t.errs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "errors_total",
		Help: "Number of exchange errors", ConstLabels: labels,
	}, []string{"kind"})
	t.inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "rx_inflight",
		Help: "Number of partially received messages", ConstLabels: labels,
	})
	t.finishLat = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "rx_seconds",
		Help:        "Time from begin-transmission to finished message",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	t.pullLat = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "pull_seconds",
		Help:        "Time spent waiting for awaited count messages",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	t.totals = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "partition_total",
		Help: "Cluster-wide partition count per tracker", ConstLabels: labels,
	}, []string{"tracker"})

	t.reg.MustRegister(t.framesSent, t.framesRecv, t.bytesSent, t.bytesRecv, t.msgsSent, t.msgsRecv,
		t.errs, t.inflight, t.finishLat, t.pullLat, t.totals)
	return t
}

func (t *Tracker) Registry() *prometheus.Registry { return t.reg }

func (t *Tracker) FrameSent(size int64) {
	if t == nil {
		return
	}
	t.framesSent.Inc()
	t.bytesSent.Add(float64(size))
}

func (t *Tracker) FrameRecv(size int64) {
	if t == nil {
		return
	}
	t.framesRecv.Inc()
	t.bytesRecv.Add(float64(size))
}

func (t *Tracker) MsgSent() {
	if t != nil {
		t.msgsSent.Inc()
	}
}

func (t *Tracker) RxBegin() {
	if t != nil {
		t.inflight.Inc()
	}
}

// RxEnd is called once per begun message, finished or failed.
func (t *Tracker) RxEnd(specific bool, elapsed time.Duration, err error) {
	if t == nil {
		return
	}
	t.inflight.Dec()
	if err != nil {
		t.errs.WithLabelValues(ErrFinish).Inc()
		return
	}
	route := "generic"
	if specific {
		route = "specific"
	}
	t.msgsRecv.WithLabelValues(route).Inc()
	t.finishLat.Observe(elapsed.Seconds())
}

func (t *Tracker) Err(kind string) {
	if t != nil {
		t.errs.WithLabelValues(kind).Inc()
	}
}

func (t *Tracker) Pulled(elapsed time.Duration) {
	if t != nil {
		t.pullLat.Observe(elapsed.Seconds())
	}
}

func (t *Tracker) SetTotal(tracker, total int) {
	if t != nil {
		t.totals.WithLabelValues(strconv.Itoa(tracker)).Set(float64(total))
	}
}
