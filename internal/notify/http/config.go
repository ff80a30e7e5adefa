package http

import (
	"errors"
	"time"
)

// Config configures the notify bus's HTTP exporter: where flattened
// trace events are shipped (a log pipeline, a collector-agnostic
// ingest endpoint, etc).
type Config struct {
	// Enabled turns the HTTP exporter on. When false, the bus only
	// fans out to in-process subscribers.
	Enabled bool `yaml:"enabled"`

	// Address is the HTTP endpoint events are POSTed to.
	Address string `yaml:"address"`

	// Headers are additional HTTP headers included on every request.
	Headers map[string]string `yaml:"headers"`

	// Compression selects the request-body encoding.
	// Valid values: none, gzip, zstd, zlib, snappy. Defaults to gzip.
	Compression string `yaml:"compression"`

	// BatchSize is the maximum number of events per batch.
	BatchSize int `yaml:"batch_size"`

	// BatchTimeout bounds how long a partial batch waits before being
	// flushed anyway.
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	// ExportTimeout bounds a single export HTTP call.
	ExportTimeout time.Duration `yaml:"export_timeout"`

	// MaxQueueSize bounds how many events may be queued before new
	// ones are dropped.
	MaxQueueSize int `yaml:"max_queue_size"`

	// Workers is the number of concurrent export workers.
	Workers int `yaml:"workers"`

	// KeepAlive controls HTTP connection reuse.
	KeepAlive *bool `yaml:"keep_alive"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	keepAlive := true

	return Config{
		Compression:   CompressionGzip,
		BatchSize:     512,
		BatchTimeout:  5 * time.Second,
		ExportTimeout: 30 * time.Second,
		MaxQueueSize:  51200,
		Workers:       1,
		KeepAlive:     &keepAlive,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Address == "" {
		return errors.New("http address is required when enabled")
	}

	if c.BatchSize <= 0 {
		return errors.New("batch_size must be greater than 0")
	}

	if c.MaxQueueSize <= 0 {
		return errors.New("max_queue_size must be greater than 0")
	}

	if c.BatchSize > c.MaxQueueSize {
		return errors.New("batch_size cannot be greater than max_queue_size")
	}

	if c.Workers <= 0 {
		return errors.New("workers must be greater than 0")
	}

	switch c.Compression {
	case "", CompressionNone, CompressionGzip, CompressionZstd, CompressionZlib, CompressionSnappy:
		// Valid.
	default:
		return errors.New("invalid compression type: " + c.Compression)
	}

	return nil
}

// ApplyDefaults fills unset fields with DefaultConfig's values.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Compression == "" {
		c.Compression = d.Compression
	}

	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = d.BatchTimeout
	}

	if c.ExportTimeout <= 0 {
		c.ExportTimeout = d.ExportTimeout
	}

	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}

	if c.Workers <= 0 {
		c.Workers = d.Workers
	}

	if c.KeepAlive == nil {
		c.KeepAlive = d.KeepAlive
	}
}

// IsKeepAlive reports whether HTTP keep-alive is enabled.
func (c *Config) IsKeepAlive() bool {
	if c.KeepAlive == nil {
		return true
	}

	return *c.KeepAlive
}
