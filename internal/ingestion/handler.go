package ingestion

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/beacon-lab/project-beacon/internal/api/v1"
	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgBodyTooLarge   = "Request body exceeds maximum allowed size"
)

const maxBatchEvents = 500

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles HTTP POST requests for single-event ingestion.
// A valid event is handed to the realtime engine and acknowledged with 202;
// the engine never blocks the request on storage or subscribers.
func (s *Service) IngestHandler(c *gin.Context) {
	body, ingErr := s.readBody(c)
	if ingErr != nil {
		writeError(c, ingErr)
		return
	}

	var evt v1.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(body))
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}

	if ingErr := s.acceptEvent(&evt); ingErr != nil {
		writeError(c, ingErr)
		return
	}

	slog.Info("Received Event",
		"event_name", evt.Name,
		"distinct_id", evt.DistinctID,
		"environment", evt.Environment,
		"payload_size", len(body))

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// IngestBatchHandler accepts a JSON array of events. The batch is rejected
// as a whole when any event fails validation, so clients never have to
// reconcile partial acceptance.
func (s *Service) IngestBatchHandler(c *gin.Context) {
	body, ingErr := s.readBody(c)
	if ingErr != nil {
		writeError(c, ingErr)
		return
	}

	var events []v1.Event
	if err := c.ShouldBindJSON(&events); err != nil {
		slog.Warn("Invalid JSON batch received", "error", err, "payload_size", len(body))
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}

	if len(events) == 0 {
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    "batch must contain at least one event",
		})
		return
	}
	if len(events) > maxBatchEvents {
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    "batch exceeds maximum size",
			details:    map[string]interface{}{"max_events": maxBatchEvents},
		})
		return
	}

	// Validate everything before ingesting anything.
	for i := range events {
		if err := events[i].Validate(); err != nil {
			slog.Warn("Envelope validation failed in batch", "error", err, "index", i)
			writeError(c, &ingestionError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpValidationError,
				message:    err.Error(),
				details:    map[string]interface{}{"index": i},
			})
			return
		}
	}

	now := time.Now().UTC()
	for i := range events {
		events[i].IngestedAt = now
		s.engine.IngestEvent(&events[i])
	}

	slog.Info("Received event batch", "events", len(events), "payload_size", len(body))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "events": len(events)})
}

// readBody reads the raw request body under the configured size limit and
// rewinds it so ShouldBindJSON can consume it.
func (s *Service) readBody(c *gin.Context) ([]byte, *ingestionError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpPayloadTooLargeError,
			message:    msgBodyTooLarge,
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return bodyBytes, nil
}

// acceptEvent validates the envelope, stamps the ingestion time, and hands
// the event to the engine.
func (s *Service) acceptEvent(evt *v1.Event) *ingestionError {
	if err := evt.Validate(); err != nil {
		slog.Warn("Envelope validation failed", "error", err, "event_name", evt.Name)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    err.Error(),
		}
	}

	evt.IngestedAt = time.Now().UTC()
	s.engine.IngestEvent(evt)
	return nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
