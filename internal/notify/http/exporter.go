// Package http ships batches of notify.Event records to an HTTP
// endpoint as newline-delimited JSON, with pluggable compression.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	"github.com/obstrace/obstrace/internal/notify"
)

// Exporter ships batches of flattened trace events over HTTP.
type Exporter struct {
	cfg   Config
	codec *codec

	client  *http.Client
	log     logrus.FieldLogger
	onError func(error)
}

var _ processor.ItemExporter[notify.Event] = (*Exporter)(nil)

// Option configures an Exporter beyond what Config covers.
type Option func(*Exporter)

// WithErrorHook registers fn to be called, in addition to the normal
// error return, whenever an export attempt fails. The batch
// processor that owns an Exporter swallows export errors into its
// own retry/drop bookkeeping, so without this hook a caller outside
// this package has no way to observe a failing export; internal/runtime
// uses it to drive health.Metrics.NotifyExportErrors.
func WithErrorHook(fn func(error)) Option {
	return func(e *Exporter) {
		e.onError = fn
	}
}

// NewExporter creates an Exporter from cfg, validating and defaulting
// it first.
func NewExporter(log logrus.FieldLogger, cfg Config, opts ...Option) (*Exporter, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c, err := newCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating codec: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Workers * 2,
		MaxIdleConnsPerHost: cfg.Workers * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   !cfg.IsKeepAlive(),
	}

	e := &Exporter{
		cfg:    cfg,
		codec:  c,
		client: &http.Client{Transport: transport, Timeout: cfg.ExportTimeout},
		log:    log.WithField("component", "notify_http_exporter"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// ExportItems marshals events as NDJSON, compresses the body per
// Config.Compression, and POSTs it to Config.Address.
func (e *Exporter) ExportItems(ctx context.Context, items []*notify.Event) error {
	if len(items) == 0 {
		return nil
	}

	if err := e.doExport(ctx, items); err != nil {
		if e.onError != nil {
			e.onError(err)
		}

		return err
	}

	return nil
}

func (e *Exporter) doExport(ctx context.Context, items []*notify.Event) error {
	var buf bytes.Buffer
	buf.Grow(len(items) * 192)

	enc := json.NewEncoder(&buf)

	for _, item := range items {
		if item == nil {
			continue
		}

		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
	}

	body, err := e.codec.encode(buf.Bytes())
	if err != nil {
		return fmt.Errorf("compressing body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")

	if enc := e.codec.contentEncoding(); enc != "" {
		req.Header.Set("Content-Encoding", enc)
	}

	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	e.log.WithFields(logrus.Fields{
		"events":     len(items),
		"bytes":      buf.Len(),
		"compressed": len(body),
	}).Debug("exported batch of trace events")

	return nil
}

// Shutdown releases resources held by the codec (e.g. pooled zstd
// encoders).
func (e *Exporter) Shutdown(_ context.Context) error {
	if e.codec != nil {
		return e.codec.close()
	}

	return nil
}

// NewProcessor wraps a freshly-created Exporter in a
// processor.BatchItemProcessor configured from cfg.
func NewProcessor(log logrus.FieldLogger, cfg Config, opts ...Option) (*processor.BatchItemProcessor[notify.Event], error) {
	exporter, err := NewExporter(log, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	proc, err := processor.NewBatchItemProcessor[notify.Event](
		exporter,
		"notify_http",
		log,
		processor.WithMaxQueueSize(cfg.MaxQueueSize),
		processor.WithBatchTimeout(cfg.BatchTimeout),
		processor.WithExportTimeout(cfg.ExportTimeout),
		processor.WithMaxExportBatchSize(cfg.BatchSize),
		processor.WithWorkers(cfg.Workers),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return proc, nil
}
