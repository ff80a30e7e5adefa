package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obstrace/obstrace/internal/notify"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestExporter_ExportItems(t *testing.T) {
	var receivedBody []byte
	var receivedContentType, receivedContentEncoding, receivedCustomHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		receivedContentEncoding = r.Header.Get("Content-Encoding")
		receivedCustomHeader = r.Header.Get("X-Custom-Header")

		body, _ := io.ReadAll(r.Body)
		receivedBody = body

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionGzip,
		Headers:     map[string]string{"X-Custom-Header": "test-value"},
	}

	exporter, err := NewExporter(testLog(), cfg)
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	items := []*notify.Event{
		{Collector: "default", ThreadID: 1, Kind: "begin"},
		{Collector: "default", ThreadID: 1, Kind: "end"},
	}

	require.NoError(t, exporter.ExportItems(context.Background(), items))

	assert.Equal(t, "application/x-ndjson", receivedContentType)
	assert.Equal(t, "gzip", receivedContentEncoding)
	assert.Equal(t, "test-value", receivedCustomHeader)

	decoded, err := DecodeGzip(receivedBody)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(decoded)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"kind":"begin"`)
	assert.Contains(t, lines[1], `"kind":"end"`)
}

func TestExporter_NoCompression(t *testing.T) {
	var receivedBody []byte
	var receivedContentEncoding string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentEncoding = r.Header.Get("Content-Encoding")

		body, _ := io.ReadAll(r.Body)
		receivedBody = body

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{Enabled: true, Address: server.URL, Compression: CompressionNone}

	exporter, err := NewExporter(testLog(), cfg)
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	items := []*notify.Event{{Collector: "default", Kind: "begin"}}

	require.NoError(t, exporter.ExportItems(context.Background(), items))

	assert.Empty(t, receivedContentEncoding)
	assert.Contains(t, string(receivedBody), `"kind":"begin"`)
}

func TestExporter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := Config{Enabled: true, Address: server.URL, Compression: CompressionNone}

	exporter, err := NewExporter(testLog(), cfg)
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	err = exporter.ExportItems(context.Background(), []*notify.Event{{Kind: "begin"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 500")
}

func TestExporter_WithErrorHookFiresOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := Config{Enabled: true, Address: server.URL, Compression: CompressionNone}

	var hookErr error
	hookCalls := 0

	exporter, err := NewExporter(testLog(), cfg, WithErrorHook(func(err error) {
		hookCalls++
		hookErr = err
	}))
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	err = exporter.ExportItems(context.Background(), []*notify.Event{{Kind: "begin"}})
	require.Error(t, err)

	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, err, hookErr)
}

func TestExporter_WithErrorHookNotCalledOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{Enabled: true, Address: server.URL, Compression: CompressionNone}

	hookCalls := 0

	exporter, err := NewExporter(testLog(), cfg, WithErrorHook(func(error) {
		hookCalls++
	}))
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	require.NoError(t, exporter.ExportItems(context.Background(), []*notify.Event{{Kind: "begin"}}))
	assert.Zero(t, hookCalls)
}

func TestExporter_EmptyBatch(t *testing.T) {
	serverCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serverCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{Enabled: true, Address: server.URL, Compression: CompressionNone}

	exporter, err := NewExporter(testLog(), cfg)
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	require.NoError(t, exporter.ExportItems(context.Background(), []*notify.Event{}))
	assert.False(t, serverCalled)
}
