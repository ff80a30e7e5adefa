package trace

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// registryNode is a lock-free singly-linked list node. Nodes are
// never removed or relocated while the collector lives, so a pointer
// to a node's PerThreadData is stable for the process's lifetime.
type registryNode struct {
	data *PerThreadData
	next atomic.Pointer[registryNode]
}

// ThreadRegistry is an append-only, lock-free singly-linked list of
// PerThreadData slots. Any goroutine may insert a new slot at any
// time; exactly one harvester iterates at a time, concurrently with
// producers inserting and appending.
type ThreadRegistry struct {
	head atomic.Pointer[registryNode]

	// goroutines accelerates "current goroutine -> its slot" lookups.
	// Go has no native thread-local storage and goroutines are not
	// 1:1 with OS threads, so this cache — not the list — is the
	// Go-idiomatic substitute for the native per-thread storage the
	// design assumes. The list remains authoritative for iteration
	// and lifetime; the cache is populated once per goroutine and
	// never mutated afterward.
	goroutines sync.Map // goroutineID -> *PerThreadData
}

// NewThreadRegistry creates an empty registry.
func NewThreadRegistry() *ThreadRegistry {
	return &ThreadRegistry{}
}

// Insert publishes a new slot via CAS on head. Safe to call
// concurrently with Range and with other Insert calls.
func (r *ThreadRegistry) Insert(data *PerThreadData) {
	node := &registryNode{data: data}

	for {
		head := r.head.Load()
		node.next.Store(head)

		if r.head.CompareAndSwap(head, node) {
			return
		}
	}
}

// Range walks every registered slot, calling fn once per slot. New
// slots inserted concurrently with a Range call may or may not be
// observed by that call; both outcomes are correct because a
// brand-new slot holds no events relevant to an in-progress harvest.
func (r *ThreadRegistry) Range(fn func(*PerThreadData)) {
	for n := r.head.Load(); n != nil; n = n.next.Load() {
		fn(n.data)
	}
}

// lookup returns the slot cached for the calling goroutine, if any.
func (r *ThreadRegistry) lookup(gid int64) (*PerThreadData, bool) {
	v, ok := r.goroutines.Load(gid)
	if !ok {
		return nil, false
	}

	return v.(*PerThreadData), true
}

// bind records the calling goroutine's slot in the lookup cache. It
// does not insert the slot into the list — callers must do that via
// Insert when the slot is first created.
func (r *ThreadRegistry) bind(gid int64, data *PerThreadData) {
	r.goroutines.Store(gid, data)
}

// goroutineID extracts the calling goroutine's numeric id by parsing
// the header line of a stack trace taken for this goroutine alone.
// This is a well-known, if unofficial, substitute for true
// thread-local identity in Go. Collector.getThreadData calls it on
// every emit to find the calling goroutine's slot.
func goroutineID() int64 {
	var buf [64]byte

	n := runtime.Stack(buf[:], false)
	// Format: "goroutine 123 [running]:\n..."
	s := string(buf[:n])

	const prefix = "goroutine "
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return -1
	}

	s = s[len(prefix):]

	end := 0
	for end < len(s) && s[end] != ' ' {
		end++
	}

	id, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return -1
	}

	return id
}
