package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obstrace/obstrace/internal/notify"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return log
}

func startMetrics(t *testing.T) *Metrics {
	t.Helper()

	m := New(testLog(), Config{Addr: "127.0.0.1:0"})

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop() })

	time.Sleep(50 * time.Millisecond)

	return m
}

func TestMetrics_StartStop(t *testing.T) {
	m := startMetrics(t)
	assert.True(t, m.running.Load())
	assert.NotEmpty(t, m.Addr())
}

func TestMetrics_ObserveCollectionAndGate(t *testing.T) {
	m := startMetrics(t)

	m.ObserveGate(true)
	m.ObserveCollection([]notify.Event{{Kind: "begin"}, {Kind: "begin"}, {Kind: "timespan"}})
	m.SampleRegistrySize(3)

	url := fmt.Sprintf("http://%s/metrics", m.Addr())

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	bodyStr := string(body)
	assert.Contains(t, bodyStr, "obstrace_gate_enabled 1")
	assert.Contains(t, bodyStr, `obstrace_events_by_kind_total{kind="begin"} 2`)
	assert.Contains(t, bodyStr, `obstrace_events_by_kind_total{kind="timespan"} 1`)
	assert.Contains(t, bodyStr, "obstrace_registry_size 3")
}

func TestMetrics_HealthzResponse(t *testing.T) {
	m := startMetrics(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", m.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMetrics_TimerRecordsHarvest(t *testing.T) {
	m := startMetrics(t)

	done := m.Timer()
	done()

	url := fmt.Sprintf("http://%s/metrics", m.Addr())

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "obstrace_harvests_total 1")
}

func TestMetrics_StopIdempotent(t *testing.T) {
	m := New(testLog(), Config{})

	assert.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
}

func TestMetrics_AddrBeforeStart(t *testing.T) {
	m := New(testLog(), Config{Addr: ":9999"})
	assert.Equal(t, ":9999", m.Addr())
}
