// Package cmn provides common constants, types, and utilities for the exchange
// packages and the simulator.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shxinding/blazingsql/cmn/cos"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	EndpointLoopback = "loopback"
	EndpointHTTP     = "http"
	EndpointNATS     = "nats"

	CompressNever  = "never"
	CompressAlways = "always"
)

type (
	Config struct {
		Log       LogConf       `json:"log" yaml:"log"`
		Transport TransportConf `json:"transport" yaml:"transport"`
		Shuffle   ShuffleConf   `json:"shuffle" yaml:"shuffle"`
		Memsys    MemsysConf    `json:"memsys" yaml:"memsys"`
		Metrics   MetricsConf   `json:"metrics" yaml:"metrics"`
		Tracing   TracingConf   `json:"tracing" yaml:"tracing"`
	}
	LogConf struct {
		Dir      string      `json:"dir" yaml:"dir"`
		Modules  []string    `json:"modules" yaml:"modules"`
		Level    int         `json:"level" yaml:"level"`
		MaxSize  cos.SizeIEC `json:"max_size" yaml:"max_size"`
		ToStderr bool        `json:"to_stderr" yaml:"to_stderr"`
	}
	TransportConf struct {
		Endpoint     string      `json:"endpoint" yaml:"endpoint"`
		Compression  string      `json:"compression" yaml:"compression"`
		NATSURL      string      `json:"nats_url" yaml:"nats_url"`
		HTTPPath     string      `json:"http_path" yaml:"http_path"`
		Burst        int         `json:"burst" yaml:"burst"`                   // per-destination send queue depth
		MaxFrameSize cos.SizeIEC `json:"max_frame_size" yaml:"max_frame_size"` // largest frame the http endpoint accepts
	}
	ShuffleConf struct {
		PullTimeout     cos.Duration `json:"pull_timeout" yaml:"pull_timeout"` // zero: wait indefinitely
		ConcurrentPulls bool         `json:"concurrent_pulls" yaml:"concurrent_pulls"`
	}
	MemsysConf struct {
		MinSlabSize cos.SizeIEC `json:"min_slab_size" yaml:"min_slab_size"`
		MaxSlabSize cos.SizeIEC `json:"max_slab_size" yaml:"max_slab_size"`
	}
	MetricsConf struct {
		Namespace string `json:"namespace" yaml:"namespace"`
	}
	TracingConf struct {
		ExporterEndpoint   string  `json:"exporter_endpoint" yaml:"exporter_endpoint"`
		ServiceName        string  `json:"service_name" yaml:"service_name"`
		SamplerProbability float64 `json:"sampler_probability" yaml:"sampler_probability"`
		Enabled            bool    `json:"enabled" yaml:"enabled"`
		SkipVerify         bool    `json:"skip_verify" yaml:"skip_verify"`
	}
)

const (
	dfltBurst       = 128
	dfltMaxFrame    = 256 * cos.MiB
	dfltHTTPPath    = "/v1/xchg"
	dfltNamespace   = "blazingsql"
	dfltServiceName = "blazingsql-xchg"
)

func DefaultConfig() *Config {
	return &Config{
		Log: LogConf{
			Level:    3,
			MaxSize:  4 * cos.MiB,
			ToStderr: true,
		},
		Transport: TransportConf{
			Endpoint:     EndpointLoopback,
			Compression:  CompressNever,
			HTTPPath:     dfltHTTPPath,
			Burst:        dfltBurst,
			MaxFrameSize: dfltMaxFrame,
		},
		Memsys: MemsysConf{
			MinSlabSize: 4 * cos.KiB,
			MaxSlabSize: 128 * cos.KiB,
		},
		Metrics: MetricsConf{Namespace: dfltNamespace},
		Tracing: TracingConf{ServiceName: dfltServiceName, SamplerProbability: 1},
	}
}

// LoadConfig reads YAML (.yaml, .yml) or JSON (anything else) on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", path)
	}
	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, config)
	default:
		err = cos.JSON.Unmarshal(b, config)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %q", path)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Shuffle.Validate(); err != nil {
		return err
	}
	return c.Memsys.Validate()
}

func (c *Config) String() string { return cos.MustMarshalToString(c) }

func (c *LogConf) Validate() error {
	if c.Level < 1 || c.Level > 5 {
		return fmt.Errorf("invalid log.level %d (expecting 1..5)", c.Level)
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("invalid log.max_size %d (expecting positive)", c.MaxSize)
	}
	var lvl cos.LogLevel
	lvl.Set(c.Level, c.Modules)
	if _, modules := lvl.Parse(); countBits(modules) != len(c.Modules) {
		return fmt.Errorf("invalid log.modules %v (expecting a subset of %v)", c.Modules, cos.Smodules)
	}
	return nil
}

func (c *LogConf) LogLevel() (lvl cos.LogLevel) {
	lvl.Set(c.Level, c.Modules)
	return
}

func (c *TransportConf) Validate() error {
	switch c.Endpoint {
	case EndpointLoopback, EndpointHTTP:
	case EndpointNATS:
		if c.NATSURL == "" {
			return errors.New("transport.nats_url is required with the nats endpoint")
		}
	default:
		return fmt.Errorf("invalid transport.endpoint %q (expecting %s, %s, or %s)",
			c.Endpoint, EndpointLoopback, EndpointHTTP, EndpointNATS)
	}
	switch c.Compression {
	case CompressNever, CompressAlways:
	default:
		return fmt.Errorf("invalid transport.compression %q (expecting %s or %s)",
			c.Compression, CompressNever, CompressAlways)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("invalid transport.burst %d (expecting positive)", c.Burst)
	}
	if c.MaxFrameSize < cos.MiB {
		return fmt.Errorf("invalid transport.max_frame_size %s (expecting at least 1MiB)", c.MaxFrameSize)
	}
	if c.Endpoint == EndpointHTTP && !strings.HasPrefix(c.HTTPPath, "/") {
		return fmt.Errorf("invalid transport.http_path %q", c.HTTPPath)
	}
	return nil
}

func (c *ShuffleConf) Validate() error {
	if c.PullTimeout < 0 {
		return fmt.Errorf("invalid shuffle.pull_timeout %s (expecting non-negative)", c.PullTimeout)
	}
	return nil
}

func (c *MemsysConf) Validate() error {
	lo, hi := int64(c.MinSlabSize), int64(c.MaxSlabSize)
	if lo <= 0 || hi < lo {
		return fmt.Errorf("invalid memsys slab sizes [%s, %s]", c.MinSlabSize, c.MaxSlabSize)
	}
	if lo&(lo-1) != 0 || hi&(hi-1) != 0 {
		return fmt.Errorf("memsys slab sizes [%s, %s] must be powers of two", c.MinSlabSize, c.MaxSlabSize)
	}
	return nil
}

func countBits(v int) (n int) {
	for ; v != 0; v &= v - 1 {
		n++
	}
	return
}
