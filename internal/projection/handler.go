package projection

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
)

// RegisterRoutes registers the historical query routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/aggregates", s.HandleQueryAggregates)
}

// HandleQueryAggregates handles GET /v1/aggregates.
// Query parameters: event, granularity, start, end, environment, limit.
func (s *Service) HandleQueryAggregates(c *gin.Context) {
	var req AggregateQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParameterError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.QueryAggregates(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidParameterError,
				Message:   "Invalid aggregate query",
				Details:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to query aggregates",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}
