package trace

import "encoding/binary"

const (
	firstChunkSize = 64
	maxChunkSize   = 1 << 16
	arenaFirstSize = 1 << 12
	arenaMaxSize   = 1 << 20
)

// EventList is an append-only buffer of Events plus an auxiliary byte
// arena for large payloads. Growth is chunked (geometrically-sized
// segments) so that the address of an already-appended Event is
// never invalidated by a later append — a harvester may be handed a
// list whose arena a producer just finished writing into, and that
// memory must stay put.
//
// An EventList is written by exactly one goroutine at a time (see
// PerThreadData) and is safe to read without synchronization once it
// has been sealed by a harvest swap.
type EventList struct {
	chunks    [][]Event
	chunkSize int

	arenaChunks [][]byte
	arenaSize   int
	arenaOff    int // write offset within the last arena chunk
}

// NewEventList creates an empty EventList.
func NewEventList() *EventList {
	return &EventList{chunkSize: firstChunkSize, arenaSize: arenaFirstSize}
}

// Append adds an event to the list and returns a pointer to its
// stored slot. The returned pointer remains valid for the lifetime of
// the list.
func (l *EventList) Append(e Event) *Event {
	if len(l.chunks) == 0 || len(l.chunks[len(l.chunks)-1]) == cap(l.chunks[len(l.chunks)-1]) {
		l.growChunks()
	}

	last := len(l.chunks) - 1
	l.chunks[last] = append(l.chunks[last], e)

	return &l.chunks[last][len(l.chunks[last])-1]
}

func (l *EventList) growChunks() {
	size := l.chunkSize
	l.chunks = append(l.chunks, make([]Event, 0, size))

	if l.chunkSize < maxChunkSize {
		l.chunkSize *= 2
	}
}

// Last returns a pointer to the most recently appended event, or nil
// if the list is empty. Used by the scope-fusion optimization to peek
// the immediately preceding event.
func (l *EventList) Last() *Event {
	for i := len(l.chunks) - 1; i >= 0; i-- {
		if n := len(l.chunks[i]); n > 0 {
			return &l.chunks[i][n-1]
		}
	}

	return nil
}

// Len returns the total number of events appended to the list.
func (l *EventList) Len() int {
	n := 0
	for _, c := range l.chunks {
		n += len(c)
	}

	return n
}

// Events returns a flattened, newly-allocated copy of every event in
// the list in append order. Intended for harvested, sealed lists;
// never called from the producer's hot path.
func (l *EventList) Events() []Event {
	out := make([]Event, 0, l.Len())
	for _, c := range l.chunks {
		out = append(out, c...)
	}

	return out
}

// StoreBytes copies data into the list's payload arena and returns an
// opaque reference usable with ReadBytes. The arena is a chunked bump
// allocator, so the returned reference stays valid for the list's
// lifetime regardless of later arena growth.
func (l *EventList) StoreBytes(data []byte) uint64 {
	need := 4 + len(data) // uint32 length prefix + payload

	if len(l.arenaChunks) == 0 || l.arenaOff+need > len(l.arenaChunks[len(l.arenaChunks)-1]) {
		l.growArena(need)
	}

	idx := len(l.arenaChunks) - 1
	chunk := l.arenaChunks[idx]
	off := l.arenaOff

	binary.LittleEndian.PutUint32(chunk[off:], uint32(len(data)))
	copy(chunk[off+4:], data)

	l.arenaOff += need

	return packArenaRef(idx, off)
}

// ReadBytes resolves an arena reference previously returned by
// StoreBytes.
func (l *EventList) ReadBytes(ref uint64) []byte {
	idx, off := unpackArenaRef(ref)
	if idx < 0 || idx >= len(l.arenaChunks) {
		return nil
	}

	chunk := l.arenaChunks[idx]
	if off+4 > len(chunk) {
		return nil
	}

	n := binary.LittleEndian.Uint32(chunk[off:])
	start := off + 4

	if start+int(n) > len(chunk) {
		return nil
	}

	return chunk[start : start+int(n)]
}

func (l *EventList) growArena(need int) {
	size := l.arenaSize
	for size < need {
		size *= 2
	}

	l.arenaChunks = append(l.arenaChunks, make([]byte, size))
	l.arenaOff = 0

	if l.arenaSize < arenaMaxSize {
		l.arenaSize *= 2
	}
}

func packArenaRef(chunkIdx, offset int) uint64 {
	return uint64(uint32(chunkIdx))<<32 | uint64(uint32(offset))
}

func unpackArenaRef(ref uint64) (chunkIdx, offset int) {
	return int(int32(ref >> 32)), int(int32(ref))
}
