package monitor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smssim/internal/logger"
	"smssim/pkg/errors"
)

type Handler struct {
	monitor *Monitor
	logger  logger.Logger
}

func NewHandler(m *Monitor, log logger.Logger) *Handler {
	return &Handler{monitor: m, logger: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", h.GetStats)
	}
}

// GetStats returns the last snapshot taken by the poll loop. With
// ?fresh=true it reads the store now instead.
//
// @Summary      Get simulation stats
// @Description  Sent and failed counts with the mean processing time per message
// @Tags         stats
// @Produce      json
// @Param        fresh  query     bool  false  "Read the store now instead of returning the last poll"
// @Success      200    {object}  Snapshot
// @Failure      503    {object}  map[string]interface{}
// @Router       /stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	if c.Query("fresh") == "true" {
		snap, err := h.monitor.Read(c.Request.Context())
		if err != nil {
			h.logger.WarnwCtx(c.Request.Context(), "Fresh stats read failed", "error", err)
		}
		c.JSON(http.StatusOK, snap)
		return
	}

	snap, ok := h.monitor.Latest()
	if !ok {
		err := errors.ErrServiceUnavailable.WithDetail("message", "no stats snapshot taken yet")
		h.logger.WarnwCtx(c.Request.Context(), "Stats requested before first poll", "path", c.Request.URL.Path)
		c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, snap)
}
