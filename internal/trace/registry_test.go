package trace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadRegistry_InsertAndRange(t *testing.T) {
	r := NewThreadRegistry()

	a := newPerThreadData(1)
	b := newPerThreadData(2)

	r.Insert(a)
	r.Insert(b)

	var seen []uint64
	r.Range(func(p *PerThreadData) {
		seen = append(seen, p.ThreadID())
	})

	assert.ElementsMatch(t, []uint64{1, 2}, seen)
}

func TestThreadRegistry_ConcurrentInsert(t *testing.T) {
	r := NewThreadRegistry()

	var wg sync.WaitGroup
	const n = 200

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Insert(newPerThreadData(uint64(i)))
		}(i)
	}

	wg.Wait()

	count := 0
	r.Range(func(*PerThreadData) { count++ })
	assert.Equal(t, n, count)
}

func TestThreadRegistry_LookupAndBind(t *testing.T) {
	r := NewThreadRegistry()

	_, ok := r.lookup(42)
	assert.False(t, ok)

	p := newPerThreadData(7)
	r.bind(42, p)

	got, ok := r.lookup(42)
	assert.True(t, ok)
	assert.Same(t, p, got)
}

func TestGoroutineID_ReturnsDistinctIDsAcrossGoroutines(t *testing.T) {
	id1 := goroutineID()

	idc := make(chan int64, 1)
	go func() { idc <- goroutineID() }()
	id2 := <-idc

	assert.NotEqual(t, id1, id2)
	assert.GreaterOrEqual(t, id1, int64(0))
	assert.GreaterOrEqual(t, id2, int64(0))
}
