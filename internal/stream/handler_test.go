package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	v1 "github.com/beacon-lab/project-beacon/internal/api/v1"
	"github.com/beacon-lab/project-beacon/internal/core/aggregate"
	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
	"github.com/beacon-lab/project-beacon/internal/core/tracking"
	"github.com/beacon-lab/project-beacon/internal/realtime"
)

type nopStore struct{}

func (nopStore) BatchStore(context.Context, []aggregate.BucketSnapshot) error { return nil }

func newTestStream(t *testing.T, cfg realtime.Config) (*realtime.Engine, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rules, err := tracking.NewFileSystemRepository(t.TempDir())
	require.NoError(t, err)

	engine := realtime.NewEngine(cfg, rules, nopStore{})
	svc := NewService(engine)

	r := gin.New()
	svc.RegisterRoutes(r)
	return engine, r
}

func ingest(engine *realtime.Engine, name, distinctID string) {
	engine.IngestEvent(&v1.Event{
		Name:       name,
		DistinctID: distinctID,
		Timestamp:  time.Now().UTC(),
	})
}

func eventWithProps(name, distinctID string, props map[string]interface{}) *v1.Event {
	return &v1.Event{
		Name:       name,
		DistinctID: distinctID,
		Timestamp:  time.Now().UTC(),
		Properties: props,
	}
}

func getJSON(t *testing.T, r *gin.Engine, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return resp.Code, body
}

func TestRecentEventsHandler(t *testing.T) {
	engine, r := newTestStream(t, realtime.Config{})
	ingest(engine, "e1", "u1")
	ingest(engine, "e2", "u1")
	ingest(engine, "e3", "u1")

	code, body := getJSON(t, r, "/v1/events/recent?limit=2")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, body["count"])

	events := body["events"].([]interface{})
	first := events[0].(map[string]interface{})
	require.Equal(t, "e3", first["name"], "newest event first")
}

func TestRecentEventsHandler_InvalidLimit(t *testing.T) {
	_, r := newTestStream(t, realtime.Config{})

	for _, path := range []string{
		"/v1/events/recent?limit=abc",
		"/v1/events/recent?limit=0",
		"/v1/events/recent?limit=5000",
	} {
		code, body := getJSON(t, r, path)
		require.Equal(t, http.StatusBadRequest, code, path)
		require.Equal(t, httperr.HttpInvalidParameterError, body["error_type"], path)
	}
}

func TestLiveCountHandler(t *testing.T) {
	engine, r := newTestStream(t, realtime.Config{})
	ingest(engine, "pageview", "alice")
	ingest(engine, "pageview", "bob")
	ingest(engine, "click", "alice")

	code, body := getJSON(t, r, "/v1/live/count")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, body["count"])
	require.EqualValues(t, 300, body["ttl_seconds"], "default presence TTL")

	code, body = getJSON(t, r, "/v1/live/count?ttl_seconds=60")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 60, body["ttl_seconds"])
}

func TestLiveCountHandler_InvalidTTL(t *testing.T) {
	_, r := newTestStream(t, realtime.Config{})

	code, body := getJSON(t, r, "/v1/live/count?ttl_seconds=-5")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, httperr.HttpInvalidParameterError, body["error_type"])
}

func TestLiveUsersHandler(t *testing.T) {
	engine, r := newTestStream(t, realtime.Config{})
	engine.IngestEvent(&v1.Event{
		Name:       "pageview",
		DistinctID: "alice",
		SessionID:  "sess-1",
		Timestamp:  time.Now().UTC(),
		Properties: map[string]interface{}{"path": "/pricing"},
	})

	code, body := getJSON(t, r, "/v1/live/users")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["count"])

	users := body["users"].([]interface{})
	user := users[0].(map[string]interface{})
	require.Equal(t, "alice", user["distinct_id"])
	require.Equal(t, "sess-1", user["session_id"])
	require.Equal(t, "/pricing", user["context"])
}

func TestRatesHandler(t *testing.T) {
	engine, r := newTestStream(t, realtime.Config{RateWindow: time.Minute})
	for i := 0; i < 6; i++ {
		ingest(engine, "click", "u1")
	}

	code, body := getJSON(t, r, "/v1/rates")
	require.Equal(t, http.StatusOK, code)

	counts := body["counts"].(map[string]interface{})
	require.EqualValues(t, 6, counts["click"])

	rates := body["rates"].(map[string]interface{})
	require.InDelta(t, 0.1, rates["click"].(float64), 1e-9)
}

func TestMetricsHandler(t *testing.T) {
	engine, r := newTestStream(t, realtime.Config{})

	sub, err := engine.Subscribe(realtime.Subscription{})
	require.NoError(t, err)
	defer engine.Unsubscribe(sub.ID)

	ingest(engine, "click", "u1")

	code, body := getJSON(t, r, "/v1/stream/metrics")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, body["active_connections"])
	require.EqualValues(t, 1, body["total_connections"])
	require.EqualValues(t, 1, body["events_total"])
}
