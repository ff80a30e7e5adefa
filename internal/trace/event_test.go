package trace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_Float64RoundTrip(t *testing.T) {
	e := Event{Payload: float64bits(1.5)}
	assert.InDelta(t, 1.5, e.Float64(), 0)
}

func TestEvent_BoolPayload(t *testing.T) {
	e := Event{Payload: 1}
	assert.True(t, e.Bool())

	e.Payload = 0
	assert.False(t, e.Bool())
}

func TestEvent_Int64Payload(t *testing.T) {
	e := Event{Payload: uint64(int64(-42))}
	assert.Equal(t, int64(-42), e.Int64())
}

func TestEvent_EndTimestamp(t *testing.T) {
	e := Event{Kind: KindTimespan, Timestamp: 10, Payload: 20}
	assert.Equal(t, Timestamp(20), e.EndTimestamp())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "begin", KindBegin.String())
	assert.Equal(t, "timespan", KindTimespan.String())
	assert.Contains(t, Kind(200).String(), "unknown")
}

func TestFloat64BitsRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1.5, -1.5, math.MaxFloat64, math.SmallestNonzeroFloat64} {
		e := Event{Payload: float64bits(v)}
		assert.Equal(t, v, e.Float64())
	}
}
