package observability

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMetricsExposeOtelInstruments(t *testing.T) {
	m, err := SetupMetrics("stock-chat-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	counter, err := otel.Meter("test").Int64Counter("chat_test_events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chat_test_events_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTracingShutdownFlushes(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := SetupTracing("stock-chat-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "chat.Publish")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "chat.Publish")
}
