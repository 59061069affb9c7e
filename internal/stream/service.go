package stream

import (
	"github.com/gin-gonic/gin"

	"github.com/beacon-lab/project-beacon/internal/realtime"
)

// Service exposes the engine's live read surface: the WebSocket event
// stream plus the JSON snapshot endpoints dashboards poll.
type Service struct {
	engine *realtime.Engine
}

func NewService(engine *realtime.Engine) *Service {
	if engine == nil {
		panic("stream: engine must not be nil")
	}
	return &Service{engine: engine}
}

// RegisterRoutes registers the stream service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/stream", s.StreamHandler)

	r.GET("/v1/events/recent", s.RecentEventsHandler)
	r.GET("/v1/live/count", s.LiveCountHandler)
	r.GET("/v1/live/users", s.LiveUsersHandler)
	r.GET("/v1/rates", s.RatesHandler)
	r.GET("/v1/stream/metrics", s.MetricsHandler)
}
