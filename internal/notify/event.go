// Package notify implements the subscriber bus described in the
// external interfaces of the trace collector: the "collection
// available" notification, flattened into a stream of individually
// exportable records for downstream consumers.
package notify

import "github.com/obstrace/obstrace/internal/trace"

// Event is a single trace.Event flattened into a self-describing,
// JSON-marshalable record. It is the wire shape the HTTP exporter
// (and any future exporter) actually ships; trace.Collection and
// trace.EventList never leave the process.
type Event struct {
	Collector string `json:"collector"`
	ThreadID  uint64 `json:"thread_id"`
	HarvestAt uint64 `json:"harvest_at"`

	Kind      string `json:"kind"`
	Key       uint64 `json:"key"`
	Category  uint32 `json:"category"`
	Timestamp uint64 `json:"timestamp"`

	// At most one of the following is populated, selected by
	// ValueKind. Omitted fields are left at their zero value rather
	// than carried as a tagged union, since NDJSON consumers generally
	// prefer flat, optional fields over a discriminated payload.
	ValueKind string   `json:"value_kind,omitempty"`
	EndTime   uint64   `json:"end_time,omitempty"`
	Bool      *bool    `json:"bool,omitempty"`
	Int64     *int64   `json:"int64,omitempty"`
	Float64   *float64 `json:"float64,omitempty"`
	Bytes     string   `json:"bytes,omitempty"` // UTF-8 best-effort; binary payloads may not round-trip.
}

// Flatten expands a harvested trace.Collection into one Event per
// trace.Event, in (thread, program order) order.
func Flatten(coll *trace.Collection) []Event {
	var out []Event

	for _, group := range coll.Threads() {
		for _, e := range group.List.Events() {
			out = append(out, flattenOne(coll, group, e))
		}
	}

	return out
}

func flattenOne(coll *trace.Collection, group trace.ThreadEvents, e trace.Event) Event {
	out := Event{
		Collector: coll.Label(),
		ThreadID:  group.ThreadID,
		HarvestAt: uint64(coll.HarvestedAt()),
		Kind:      e.Kind.String(),
		Key:       uint64(e.Key),
		Category:  uint32(e.Category),
		Timestamp: uint64(e.Timestamp),
	}

	switch e.ValueKind {
	case trace.ValueBool:
		v := e.Bool()
		out.ValueKind = "bool"
		out.Bool = &v
	case trace.ValueInt64:
		v := e.Int64()
		out.ValueKind = "int64"
		out.Int64 = &v
	case trace.ValueFloat64:
		v := e.Float64()
		out.ValueKind = "float64"
		out.Float64 = &v
	case trace.ValuePointer:
		v := int64(e.Payload)
		out.ValueKind = "pointer"
		out.Int64 = &v
	case trace.ValueTimespanEnd:
		out.ValueKind = "timespan_end"
		out.EndTime = uint64(e.EndTimestamp())
	case trace.ValueArenaBytes:
		out.ValueKind = "bytes"
		out.Bytes = group.PayloadString(e)
	}

	return out
}
