package ingestion

import (
	"github.com/gin-gonic/gin"

	"github.com/beacon-lab/project-beacon/internal/realtime"
)

type Service struct {
	engine           *realtime.Engine
	maxBodySizeBytes int
}

func NewService(engine *realtime.Engine, maxBodySizeMB int) *Service {
	if engine == nil {
		panic("ingestion: engine must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		engine:           engine,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	// Canonical ingestion endpoint.
	r.POST("/v1/events", s.IngestHandler)

	// Batch variant for SDKs that buffer client-side.
	r.POST("/v1/events/batch", s.IngestBatchHandler)
}
