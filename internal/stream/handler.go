package stream

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

// RecentEventsHandler returns up to `limit` most recent events, newest first.
func (s *Service) RecentEventsHandler(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultRecentLimit)
	if !ok {
		return
	}
	if limit <= 0 || limit > maxRecentLimit {
		writeParamError(c, "limit must be between 1 and 1000")
		return
	}

	events := s.engine.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// LiveCountHandler returns the number of actors seen within the TTL.
// An optional ttl_seconds query overrides the configured default.
func (s *Service) LiveCountHandler(c *gin.Context) {
	ttl, ok := s.ttlQuery(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":       s.engine.LiveUserCount(ttl),
		"ttl_seconds": int(ttl.Seconds()),
	})
}

// LiveUsersHandler lists live actors, most recently seen first.
func (s *Service) LiveUsersHandler(c *gin.Context) {
	ttl, ok := s.ttlQuery(c)
	if !ok {
		return
	}

	records := s.engine.LiveUsers(ttl)
	users := make([]gin.H, 0, len(records))
	for _, rec := range records {
		users = append(users, gin.H{
			"distinct_id": rec.DistinctID,
			"last_seen":   rec.LastSeen,
			"session_id":  rec.SessionID,
			"context":     rec.Context,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":       len(users),
		"ttl_seconds": int(ttl.Seconds()),
		"users":       users,
	})
}

// RatesHandler reports per-event counts and events-per-second for the
// current rate window.
func (s *Service) RatesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"counts": s.engine.CurrentCounts(),
		"rates":  s.engine.CurrentRates(),
	})
}

// MetricsHandler reports broadcaster connection counters.
func (s *Service) MetricsHandler(c *gin.Context) {
	m := s.engine.Metrics()
	c.JSON(http.StatusOK, gin.H{
		"active_connections": m.ActiveConnections,
		"total_connections":  m.TotalConnections,
		"events_total":       m.EventsTotal,
	})
}

// ttlQuery resolves the liveness threshold for a request: the optional
// ttl_seconds query parameter, falling back to the configured default.
func (s *Service) ttlQuery(c *gin.Context) (time.Duration, bool) {
	raw := c.Query("ttl_seconds")
	if raw == "" {
		return s.engine.PresenceTTL(), true
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		writeParamError(c, "ttl_seconds must be a positive integer")
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// intQuery parses an optional integer query parameter. On parse failure it
// writes the 400 response and reports !ok.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeParamError(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

func writeParamError(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: httperr.HttpInvalidParameterError,
		Message:   msg,
	})
}
