package trace

// ThreadEvents pairs a harvested, sealed EventList with the thread_id
// of the producer that wrote it.
type ThreadEvents struct {
	ThreadID uint64
	List     *EventList
}

// Collection is an immutable snapshot produced by a harvest: an
// ordered set of (thread_id, sealed EventList) pairs. A Collection
// never changes after construction.
type Collection struct {
	label  string
	at     Timestamp
	groups []ThreadEvents
}

// Label returns the label of the Collector that produced this
// Collection.
func (c *Collection) Label() string {
	return c.label
}

// HarvestedAt returns the timestamp at which the harvest completed.
func (c *Collection) HarvestedAt() Timestamp {
	return c.at
}

// Threads returns the per-thread event groups in registry order.
func (c *Collection) Threads() []ThreadEvents {
	return c.groups
}

// EventCount returns the total number of events across every thread
// in the collection.
func (c *Collection) EventCount() int {
	n := 0
	for _, g := range c.groups {
		n += g.List.Len()
	}

	return n
}

// PayloadBytes resolves a KindData/ValueArenaBytes event's payload
// within the thread group that produced it.
func (g ThreadEvents) PayloadBytes(e Event) []byte {
	return g.List.ReadBytes(e.Payload)
}

// PayloadString is a convenience wrapper over PayloadBytes for
// UTF-8 string payloads.
func (g ThreadEvents) PayloadString(e Event) string {
	return string(g.List.ReadBytes(e.Payload))
}
