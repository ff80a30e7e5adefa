package notify

import (
	"context"
	"fmt"
	"sync"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"

	notifyhttp "github.com/obstrace/obstrace/internal/notify/http"
	"github.com/obstrace/obstrace/internal/trace"
)

// Config configures the notify Bus.
type Config struct {
	HTTP notifyhttp.Config `yaml:"http"`
}

// Bus is the external collaborator the spec's "published notification"
// boundary invariant calls for: it subscribes to a Collector's
// harvests, flattens each Collection, and fans it out to in-process
// subscribers and (optionally) an HTTP batch exporter.
type Bus struct {
	log  logrus.FieldLogger
	proc *processor.BatchItemProcessor[Event]

	mu             sync.RWMutex
	subs           []func([]Event)
	onQueueDropped func(n int)
}

// New creates a Bus. If cfg.HTTP.Enabled, flattened events are also
// queued for HTTP export once Start is called. opts are forwarded to
// the underlying notify/http.Exporter (e.g. WithErrorHook).
func New(log logrus.FieldLogger, cfg Config, opts ...notifyhttp.Option) (*Bus, error) {
	b := &Bus{log: log.WithField("component", "notify_bus")}

	if cfg.HTTP.Enabled {
		proc, err := notifyhttp.NewProcessor(log, cfg.HTTP, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating http processor: %w", err)
		}

		b.proc = proc
	}

	return b, nil
}

// OnQueueDropped registers fn to be called with the number of events
// dropped whenever the HTTP export queue is full. internal/runtime
// uses this to drive health.Metrics.NotifyQueueDropped.
func (b *Bus) OnQueueDropped(fn func(n int)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.onQueueDropped = fn
}

// Attach wires the Bus into a Collector's "collection available"
// notification. Call once per Collector.
func (b *Bus) Attach(c *trace.Collector) {
	c.Subscribe(b.onCollection)
}

// Subscribe registers an in-process consumer invoked synchronously
// with every flattened batch, on the harvester's goroutine. A slow
// subscriber should hand off to its own worker.
func (b *Bus) Subscribe(fn func([]Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = append(b.subs, fn)
}

// Start begins the HTTP export worker, if configured.
func (b *Bus) Start(ctx context.Context) {
	if b.proc != nil {
		b.proc.Start(ctx)
	}
}

// Stop drains and shuts down the HTTP export worker, if configured.
func (b *Bus) Stop(ctx context.Context) error {
	if b.proc == nil {
		return nil
	}

	return b.proc.Shutdown(ctx)
}

func (b *Bus) onCollection(coll *trace.Collection) {
	events := Flatten(coll)
	if len(events) == 0 {
		return
	}

	b.mu.RLock()
	subs := make([]func([]Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(events)
	}

	if b.proc == nil {
		return
	}

	ptrs := make([]*Event, len(events))
	for i := range events {
		ptrs[i] = &events[i]
	}

	if err := b.proc.Write(context.Background(), ptrs); err != nil {
		b.log.WithError(err).Debug("notify queue full, dropping batch")

		b.mu.RLock()
		onDropped := b.onQueueDropped
		b.mu.RUnlock()

		if onDropped != nil {
			onDropped(len(ptrs))
		}
	}
}
