package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notifyhttp "github.com/obstrace/obstrace/internal/notify/http"
	"github.com/obstrace/obstrace/internal/trace"
)

func TestBus_AttachFansOutToSubscribers(t *testing.T) {
	bus, err := New(testLog(), Config{})
	require.NoError(t, err)

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(events []Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, events...)
	})

	c := trace.NewCollector("bus", clockAt(1))
	c.SetEnabled(true)
	bus.Attach(c)

	k := trace.NewStaticKey("op")
	c.BeginScope(k, trace.DefaultCategory)
	c.EndScope(k, trace.DefaultCategory)

	c.CreateCollection()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 1)
	assert.Equal(t, "timespan", received[0].Kind)
}

func TestBus_NoSubscribersIsSafe(t *testing.T) {
	bus, err := New(testLog(), Config{})
	require.NoError(t, err)

	c := trace.NewCollector("bus-empty", clockAt(1))
	c.SetEnabled(true)
	bus.Attach(c)

	c.BeginEvent("x", trace.DefaultCategory)
	c.EndEvent("x", trace.DefaultCategory)

	assert.NotPanics(t, func() { c.CreateCollection() })
}

func TestBus_OnQueueDroppedRegistersCallableHook(t *testing.T) {
	bus, err := New(testLog(), Config{})
	require.NoError(t, err)

	var got int

	bus.OnQueueDropped(func(n int) { got = n })

	// Exercise the same read path onCollection uses when a Write call
	// fails, without depending on the real HTTP processor's queue-full
	// timing.
	bus.mu.RLock()
	hook := bus.onQueueDropped
	bus.mu.RUnlock()

	require.NotNil(t, hook)
	hook(3)
	assert.Equal(t, 3, got)
}
