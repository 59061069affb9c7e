package ingestion

import (
	"bytes"
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

// nopStore satisfies storage.AggregateStore; flush cycles never run in
// these tests, so it only needs to exist.
type nopStore struct{}

func (nopStore) BatchStore(context.Context, []aggregate.BucketSnapshot) error { return nil }

func newTestService(t *testing.T, maxBodySizeMB int) (*Service, *realtime.Engine, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rules, err := tracking.NewFileSystemRepository(t.TempDir())
	require.NoError(t, err)

	engine := realtime.NewEngine(realtime.Config{}, rules, nopStore{})
	svc := NewService(engine, maxBodySizeMB)

	r := gin.New()
	svc.RegisterRoutes(r)
	return svc, engine, r
}

func TestIngestHandler_Success(t *testing.T) {
	_, engine, r := newTestService(t, 1)

	evt := &v1.Event{
		Name:        "pageview",
		DistinctID:  "user-1",
		Environment: "production",
		Timestamp:   time.Now().UTC(),
		Properties:  map[string]interface{}{"path": "/home"},
	}
	body, _ := json.Marshal(evt)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	var result map[string]string
	json.Unmarshal(resp.Body.Bytes(), &result)
	require.Equal(t, "accepted", result["status"])

	// The event reached the engine's fan-out.
	recent := engine.Recent(1)
	require.Len(t, recent, 1)
	require.Equal(t, "pageview", recent[0].Name)
	require.False(t, recent[0].IngestedAt.IsZero(), "handler must stamp IngestedAt")
}

func TestIngestHandler_InvalidJSON(t *testing.T) {
	_, _, r := newTestService(t, 1)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	json.Unmarshal(resp.Body.Bytes(), &errResp)
	require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
}

func TestIngestHandler_ValidationFailure(t *testing.T) {
	_, engine, r := newTestService(t, 1)

	// Event missing distinct_id.
	evt := &v1.Event{
		Name:      "pageview",
		Timestamp: time.Now().UTC(),
	}
	body, _ := json.Marshal(evt)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	json.Unmarshal(resp.Body.Bytes(), &errResp)
	require.Equal(t, httperr.HttpValidationError, errResp.ErrorType)

	require.Empty(t, engine.Recent(1), "rejected event must not reach the engine")
}

func TestIngestHandler_BodyTooLarge(t *testing.T) {
	_, _, r := newTestService(t, 1)

	// Just over the 1MB limit.
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = 'a'
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)

	var errResp httperr.ErrorResponse
	json.Unmarshal(resp.Body.Bytes(), &errResp)
	require.Equal(t, httperr.HttpPayloadTooLargeError, errResp.ErrorType)
}

func TestIngestBatchHandler_Success(t *testing.T) {
	_, engine, r := newTestService(t, 1)

	events := []v1.Event{
		{Name: "pageview", DistinctID: "u1", Timestamp: time.Now().UTC()},
		{Name: "click", DistinctID: "u2", Timestamp: time.Now().UTC()},
	}
	body, _ := json.Marshal(events)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Len(t, engine.Recent(10), 2)
}

func TestIngestBatchHandler_RejectsWholeBatchOnInvalidEvent(t *testing.T) {
	_, engine, r := newTestService(t, 1)

	events := []v1.Event{
		{Name: "pageview", DistinctID: "u1", Timestamp: time.Now().UTC()},
		{Name: "", DistinctID: "u2", Timestamp: time.Now().UTC()}, // invalid
	}
	body, _ := json.Marshal(events)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/batch", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Empty(t, engine.Recent(10), "no event from a rejected batch may be ingested")
}

func TestIngestBatchHandler_EmptyBatch(t *testing.T) {
	_, _, r := newTestService(t, 1)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/batch", bytes.NewReader([]byte("[]")))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}
