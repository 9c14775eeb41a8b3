package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(func() float64 { return 2 })
	m.ObservePrediction("Adelie")
	m.ObservePrediction("Adelie")
	m.ObserveError(ErrorKindValidation)
	m.ObserveRequest(http.MethodPost, "/predict", http.StatusOK, 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("Adelie")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues(ErrorKindValidation)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `penguin_predictions_total{species="Adelie"} 2`)
	assert.Contains(t, body, "penguin_model_state 2")
	assert.Contains(t, body, `penguin_http_request_duration_seconds_count{method="POST",route="/predict",status="200"} 1`)
}

func TestHubBroadcastsPredictions(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(PredictionEvent, "req-1", map[string]any{"species": "Gentoo"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, PredictionEvent, msg.Type)
	assert.Equal(t, "req-1", msg.ID)
	assert.JSONEq(t, `{"species":"Gentoo"}`, string(msg.Data))
}

func TestHubDropsClientsOnShutdown(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}
