package trace

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// defaultMonotonicClock ticks off time.Now() in nanoseconds. It is
// only used when a Collector is constructed without an explicit
// Clock; production callers that care about testable timestamps
// should inject internal/clock's implementations instead.
var defaultMonotonicClock Clock = clockFunc(func() Timestamp {
	return Timestamp(time.Now().UnixNano())
})

// Collector is the process-wide singleton that records Events and
// populates Collections. All public methods are safe to call from any
// goroutine.
type Collector struct {
	label string
	clock Clock

	enabled atomic.Bool

	registry  *ThreadRegistry
	intern    *internTable
	threadSeq atomic.Uint64

	scriptRuntime atomic.Pointer[scriptBinding]

	// subscribers are notified after every successful harvest. The
	// subscriber bus itself (fan-out, batching, HTTP export) lives
	// outside this package as an external collaborator; Collector
	// only owns the minimal hook needed to publish.
	mu          sync.Mutex
	subscribers []func(*Collection)
}

type scriptBinding struct {
	runtime ScriptRuntime
}

var (
	defaultCollector     *Collector
	defaultCollectorOnce sync.Once
)

// Default returns the process-wide Collector singleton, creating it
// on first use. Teardown order relative to other globals is
// undefined; calls made after process teardown has begun are no-ops
// because IsEnabled will observe the gate as closed (or the process
// will simply be gone).
func Default() *Collector {
	defaultCollectorOnce.Do(func() {
		defaultCollector = NewCollector("default", defaultMonotonicClock)
	})

	return defaultCollector
}

// NewCollector creates an independent Collector instance. Most
// programs should use Default(); an explicit constructor exists for
// tests and for embedding multiple independent collectors (e.g. one
// per test case) without cross-talk.
func NewCollector(label string, clock Clock) *Collector {
	if clock == nil {
		clock = defaultMonotonicClock
	}

	return &Collector{
		label:    label,
		clock:    clock,
		registry: NewThreadRegistry(),
		intern:   newInternTable(),
	}
}

// Label returns the identifier for this collector instance.
func (c *Collector) Label() string {
	return c.label
}

// SetEnabled flips the global gate. Transitioning false->true clears
// any residual per-thread buffers (dropping a trailing unmatched
// Begin from a previous enabled window, per Open Question (b)) and
// reinstalls the script-runtime tracing hook if one was configured.
// Transitioning true->false removes the hook. The gate is stored with
// release ordering so a producer's subsequent acquire-load of
// IsEnabled observes any configuration published before the enable.
func (c *Collector) SetEnabled(v bool) {
	was := c.enabled.Swap(v)
	if v == was {
		return
	}

	if v {
		c.Clear()
		c.installScriptHook()
	} else {
		c.removeScriptHook()
	}
}

// IsEnabled reports whether collection is currently active. This is
// the only synchronization on the fast-disabled path and must stay
// cheap: a single atomic load.
func (c *Collector) IsEnabled() bool {
	return c.enabled.Load()
}

// Clear discards pending events from every registered PerThreadData.
// Safe to call concurrently with producers: a slot mid-append either
// finishes into the list being cleared (lost, which is the point of
// Clear) or has already moved on to the fresh one installed here.
func (c *Collector) Clear() {
	c.registry.Range(func(p *PerThreadData) {
		p.clear()
	})
}

// getThreadData returns the calling goroutine's slot, creating and
// registering one on first use.
func (c *Collector) getThreadData() *PerThreadData {
	gid := goroutineID()

	if p, ok := c.registry.lookup(gid); ok {
		return p
	}

	p := newPerThreadData(c.threadSeq.Add(1))
	c.registry.Insert(p)
	c.registry.bind(gid, p)

	return p
}

// BeginEvent records a dynamic-key begin event if the gate is open.
// Returns the assigned timestamp, or 0 when disabled.
func (c *Collector) BeginEvent(key DynamicKey, cat Category) Timestamp {
	if !c.IsEnabled() {
		return 0
	}

	ts := c.clock.Now()
	c.getThreadData().beginEvent(c.intern.Intern(string(key)), cat, ts)

	return ts
}

// EndEvent records a dynamic-key end event if the gate is open.
// Returns the assigned timestamp, or 0 when disabled.
func (c *Collector) EndEvent(key DynamicKey, cat Category) Timestamp {
	if !c.IsEnabled() {
		return 0
	}

	ts := c.clock.Now()
	c.getThreadData().endEvent(c.intern.Intern(string(key)), cat, ts)

	return ts
}

// BeginEventAtTime is BeginEvent with a caller-supplied timestamp.
// Intended for tests and debugging, not the hot path.
func (c *Collector) BeginEventAtTime(key DynamicKey, ms float64, cat Category) {
	if !c.IsEnabled() {
		return
	}

	c.getThreadData().beginEvent(c.intern.Intern(string(key)), cat, msToTimestamp(ms))
}

// EndEventAtTime is EndEvent with a caller-supplied timestamp.
func (c *Collector) EndEventAtTime(key DynamicKey, ms float64, cat Category) {
	if !c.IsEnabled() {
		return
	}

	c.getThreadData().endEvent(c.intern.Intern(string(key)), cat, msToTimestamp(ms))
}

// BeginScope records a begin event for a compile-time-known key. No
// interning occurs on this path.
func (c *Collector) BeginScope(key *StaticKey, cat Category) {
	if !c.IsEnabled() {
		return
	}

	c.getThreadData().beginScope(key.Handle(), cat, c.clock.Now())
}

// EndScope records an end event for a compile-time-known key, fusing
// it with the immediately preceding matching Begin into a single
// Timespan event where possible (§4.2).
func (c *Collector) EndScope(key *StaticKey, cat Category) {
	if !c.IsEnabled() {
		return
	}

	c.getThreadData().endScope(key.Handle(), cat, c.clock.Now())
}

// Scope records a single Timespan event whose start is the supplied
// timestamp and whose end is now.
func (c *Collector) Scope(key *StaticKey, start Timestamp, cat Category) {
	if !c.IsEnabled() {
		return
	}

	now := c.clock.Now()
	c.getThreadData().scope(key.Handle(), start, now, cat)
}

// KeyValue is one (key, value) pair for ScopeArgs. Using a typed pair
// rather than a raw variadic list moves the "even cardinality"
// contract violation the source spec describes to a compile-time
// rejection instead of a runtime assertion.
type KeyValue struct {
	Key   Key
	Value any
}

// ScopeArgs appends one Data event per pair if the gate is open.
func (c *Collector) ScopeArgs(cat Category, pairs ...KeyValue) {
	if !c.IsEnabled() {
		return
	}

	td := c.getThreadData()
	now := c.clock.Now()

	for _, kv := range pairs {
		c.storeData(td, kv.Key, cat, now, kv.Value)
	}
}

// StoreData appends a single Data event if the gate is open. Value
// must be bool, any signed integer type up to 64 bits, float64,
// uintptr, string, or []byte.
func (c *Collector) StoreData(key Key, value any, cat Category) {
	if !c.IsEnabled() {
		return
	}

	c.storeData(c.getThreadData(), key, cat, c.clock.Now(), value)
}

func (c *Collector) storeData(td *PerThreadData, key Key, cat Category, ts Timestamp, value any) {
	h := c.resolveKey(key)

	switch v := value.(type) {
	case bool:
		td.storeBool(h, cat, ts, v)
	case int:
		td.storeInt64(h, cat, ts, int64(v))
	case int8:
		td.storeInt64(h, cat, ts, int64(v))
	case int16:
		td.storeInt64(h, cat, ts, int64(v))
	case int32:
		td.storeInt64(h, cat, ts, int64(v))
	case int64:
		td.storeInt64(h, cat, ts, v)
	case uintptr:
		td.append(func(l *EventList) {
			l.Append(Event{
				Kind: KindData, ValueKind: ValuePointer,
				Key: h, Category: cat, Timestamp: ts, Payload: uint64(v),
			})
		})
	case float32:
		td.storeFloat64(h, cat, ts, float64(v))
	case float64:
		td.storeFloat64(h, cat, ts, v)
	case string:
		td.storeBytes(h, cat, ts, []byte(v))
	case []byte:
		td.storeBytes(h, cat, ts, v)
	default:
		panic("trace: StoreData called with unsupported value type")
	}
}

// resolveKey returns the Handle for either a *StaticKey or a
// DynamicKey, interning the latter on first use.
func (c *Collector) resolveKey(key Key) Handle {
	switch k := key.(type) {
	case *StaticKey:
		return k.Handle()
	case DynamicKey:
		return c.intern.Intern(string(k))
	default:
		panic("trace: Key must be *StaticKey or DynamicKey")
	}
}

// Key is satisfied by *StaticKey and DynamicKey, the two flavors of
// key the collector accepts at its dynamic-dispatch entry points
// (StoreData, RecordCounterDelta, RecordCounterValue).
type Key interface {
	isTraceKey()
}

func (*StaticKey) isTraceKey() {}
func (DynamicKey) isTraceKey() {}

// RecordCounterDelta appends a CounterDelta event if the gate is
// open.
func (c *Collector) RecordCounterDelta(key Key, delta float64, cat Category) {
	if !c.IsEnabled() {
		return
	}

	h := c.resolveKey(key)
	c.getThreadData().counterDelta(h, cat, c.clock.Now(), delta)
}

// RecordCounterValue appends a CounterValue event if the gate is
// open.
func (c *Collector) RecordCounterValue(key Key, value float64, cat Category) {
	if !c.IsEnabled() {
		return
	}

	h := c.resolveKey(key)
	c.getThreadData().counterValue(h, cat, c.clock.Now(), value)
}

// Subscribe registers fn to be called with every Collection produced
// by CreateCollection, after the collection is fully assembled. This
// realizes the spec's "collection available" published notification;
// fn is called synchronously on the harvester's goroutine, so a slow
// subscriber should hand off to its own worker (the notify package's
// Bus hands its HTTP export to a batch processor's workers, but runs
// the flattening and its own in-process subscribers synchronously).
func (c *Collector) Subscribe(fn func(*Collection)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribers = append(c.subscribers, fn)
}

// CreateCollection performs an atomic harvest: for each registered
// slot, swap its current EventList for a fresh one and wait out any
// in-flight append before sealing the swapped-out list into the
// returned Collection. Subsequent emits are guaranteed to land in the
// fresh buffers and are not present in the returned collection (§4.5).
func (c *Collector) CreateCollection() *Collection {
	var groups []ThreadEvents

	c.registry.Range(func(p *PerThreadData) {
		fresh := NewEventList()
		old := p.swap(fresh)

		spinWaitForWrite(p)

		if old.Len() > 0 {
			groups = append(groups, ThreadEvents{ThreadID: p.ThreadID(), List: old})
		}
	})

	coll := &Collection{label: c.label, at: c.clock.Now(), groups: groups}

	c.publish(coll)

	return coll
}

// spinWaitForWrite blocks until p's writing flag clears. A producer
// that had already loaded the old list before the swap completes its
// append into it before this returns; a producer entering the append
// protocol after the swap re-loads current and sees the fresh list,
// so no new writes land in old once the spin ends. The expected wait
// is bounded by a single event append (nanoseconds), so a brief
// Gosched between polls is enough to avoid starving the producer on a
// single-core build without wasting a full OS-level yield.
func spinWaitForWrite(p *PerThreadData) {
	for p.writing.Load() {
		runtime.Gosched()
	}
}

func (c *Collector) publish(coll *Collection) {
	c.mu.Lock()
	subs := make([]func(*Collection), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(coll)
	}
}

func msToTimestamp(ms float64) Timestamp {
	return Timestamp(ms * float64(time.Millisecond))
}
