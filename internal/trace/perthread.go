package trace

import "sync/atomic"

// PerThreadData is a producer: it owns a current EventList behind an
// atomic pointer, plus a "writing" flag the harvester uses to wait
// out any in-flight append before taking the list. Exactly one
// goroutine — its owner — ever calls the append methods below;
// exactly one harvester ever calls swap on it.
type PerThreadData struct {
	threadID uint64

	current atomic.Pointer[EventList]
	writing atomic.Bool

	// scopeStack supports external script-runtime auto-tracing
	// (§4.7). It is only ever touched by the owning goroutine, so it
	// needs no synchronization of its own.
	scopeStack []scopeFrame
}

type scopeFrame struct {
	handle Handle
	cat    Category
}

func newPerThreadData(threadID uint64) *PerThreadData {
	p := &PerThreadData{threadID: threadID}
	p.current.Store(NewEventList())

	return p
}

// ThreadID returns the slot's stable, process-unique small integer
// identity, assigned once on first registration.
func (p *PerThreadData) ThreadID() uint64 {
	return p.threadID
}

// append runs fn against the slot's current list under the writing
// handshake: set writing, load current, run fn, clear writing. This
// is the only protocol any append operation may use; it is the
// handshake a harvester's CreateCollection spins against.
func (p *PerThreadData) append(fn func(list *EventList)) {
	p.writing.Store(true)
	list := p.current.Load()
	fn(list)
	p.writing.Store(false)
}

func (p *PerThreadData) beginEvent(key Handle, cat Category, ts Timestamp) {
	p.append(func(l *EventList) {
		l.Append(Event{Kind: KindBegin, Key: key, Category: cat, Timestamp: ts})
	})
}

func (p *PerThreadData) endEvent(key Handle, cat Category, ts Timestamp) {
	p.append(func(l *EventList) {
		l.Append(Event{Kind: KindEnd, Key: key, Category: cat, Timestamp: ts})
	})
}

// beginScope appends a Begin event for the static-key fast path.
func (p *PerThreadData) beginScope(key Handle, cat Category, ts Timestamp) {
	p.append(func(l *EventList) {
		l.Append(Event{Kind: KindBegin, Key: key, Category: cat, Timestamp: ts})
	})
}

// endScope implements the scope-fusion optimization: if the
// immediately preceding event in the list is the matching Begin, it
// is rewritten in place into a single Timespan event instead of
// appending a separate End. Fusion is conservative by design (Open
// Question (a)): only the literal previous event is considered, never
// anything further back, so an intervening Data/ScopeData event
// always defeats it.
func (p *PerThreadData) endScope(key Handle, cat Category, ts Timestamp) {
	p.append(func(l *EventList) {
		if last := l.Last(); last != nil && last.Kind == KindBegin &&
			last.Key == key && last.Category == cat {
			last.Kind = KindTimespan
			last.ValueKind = ValueTimespanEnd
			last.Payload = uint64(ts)

			return
		}

		l.Append(Event{Kind: KindEnd, Key: key, Category: cat, Timestamp: ts})
	})
}

func (p *PerThreadData) scope(key Handle, start, end Timestamp, cat Category) {
	p.append(func(l *EventList) {
		l.Append(Event{
			Kind: KindTimespan, ValueKind: ValueTimespanEnd,
			Key: key, Category: cat, Timestamp: start, Payload: uint64(end),
		})
	})
}

func (p *PerThreadData) storeBool(key Handle, cat Category, ts Timestamp, v bool) {
	p.append(func(l *EventList) {
		var payload uint64
		if v {
			payload = 1
		}

		l.Append(Event{
			Kind: KindData, ValueKind: ValueBool,
			Key: key, Category: cat, Timestamp: ts, Payload: payload,
		})
	})
}

func (p *PerThreadData) storeInt64(key Handle, cat Category, ts Timestamp, v int64) {
	p.append(func(l *EventList) {
		l.Append(Event{
			Kind: KindData, ValueKind: ValueInt64,
			Key: key, Category: cat, Timestamp: ts, Payload: uint64(v),
		})
	})
}

func (p *PerThreadData) storeFloat64(key Handle, cat Category, ts Timestamp, v float64) {
	p.append(func(l *EventList) {
		l.Append(Event{
			Kind: KindData, ValueKind: ValueFloat64,
			Key: key, Category: cat, Timestamp: ts, Payload: float64bits(v),
		})
	})
}

func (p *PerThreadData) storeBytes(key Handle, cat Category, ts Timestamp, data []byte) {
	p.append(func(l *EventList) {
		ref := l.StoreBytes(data)
		l.Append(Event{
			Kind: KindData, ValueKind: ValueArenaBytes,
			Key: key, Category: cat, Timestamp: ts, Payload: ref,
		})
	})
}

func (p *PerThreadData) counterDelta(key Handle, cat Category, ts Timestamp, delta float64) {
	p.append(func(l *EventList) {
		l.Append(Event{
			Kind: KindCounterDelta, ValueKind: ValueFloat64,
			Key: key, Category: cat, Timestamp: ts, Payload: float64bits(delta),
		})
	})
}

func (p *PerThreadData) counterValue(key Handle, cat Category, ts Timestamp, value float64) {
	p.append(func(l *EventList) {
		l.Append(Event{
			Kind: KindCounterValue, ValueKind: ValueFloat64,
			Key: key, Category: cat, Timestamp: ts, Payload: float64bits(value),
		})
	})
}

// swap atomically replaces the slot's current list with fresh and
// returns the previous one. The caller (the harvester) must then wait
// for p.writing to clear before treating the returned list as sealed.
func (p *PerThreadData) swap(fresh *EventList) *EventList {
	return p.current.Swap(fresh)
}

// clear discards the slot's pending events by installing a fresh,
// empty list. Safe to call concurrently with the owning producer: the
// worst case is a single event recorded right at the boundary lands
// in whichever list wins the swap race, which is indistinguishable
// from ordinary concurrent-clear behavior.
func (p *PerThreadData) clear() {
	p.current.Store(NewEventList())
}

// pushScope and popScope back the optional script-runtime adapter
// (§4.7). popScope tolerates an empty stack (extra pops never panic).
func (p *PerThreadData) pushScope(key Handle, cat Category) {
	p.scopeStack = append(p.scopeStack, scopeFrame{handle: key, cat: cat})
}

func (p *PerThreadData) popScope() (scopeFrame, bool) {
	if len(p.scopeStack) == 0 {
		return scopeFrame{}, false
	}

	n := len(p.scopeStack) - 1
	f := p.scopeStack[n]
	p.scopeStack = p.scopeStack[:n]

	return f, true
}
