package notify

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obstrace/obstrace/internal/trace"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestFlatten_TimespanAndData(t *testing.T) {
	c := trace.NewCollector("flatten", clockAt(1))
	c.SetEnabled(true)

	k := trace.NewStaticKey("span")
	c.BeginScope(k, trace.DefaultCategory)
	c.EndScope(k, trace.DefaultCategory)
	c.StoreData(k, "payload", trace.DefaultCategory)

	coll := c.CreateCollection()

	events := Flatten(coll)
	require.Len(t, events, 2)

	assert.Equal(t, "timespan", events[0].Kind)
	assert.Equal(t, "timespan_end", events[0].ValueKind)
	assert.GreaterOrEqual(t, events[0].EndTime, events[0].Timestamp)

	assert.Equal(t, "data", events[1].Kind)
	assert.Equal(t, "bytes", events[1].ValueKind)
	assert.Equal(t, "payload", events[1].Bytes)
}

func TestFlatten_EmptyCollectionYieldsNoEvents(t *testing.T) {
	c := trace.NewCollector("empty", clockAt(1))
	coll := c.CreateCollection()

	assert.Empty(t, Flatten(coll))
}

func clockAt(start uint64) trace.Clock {
	return clockFunc(func() trace.Timestamp { return trace.Timestamp(start) })
}

type clockFunc func() trace.Timestamp

func (f clockFunc) Now() trace.Timestamp { return f() }
