package dashboardhttp

import (
	"errors"
	"net/http"

	"radar/internal/logger"
	"radar/internal/snapshot"

	"github.com/gin-gonic/gin"
)

func (h *handlers) registerCharts(group *gin.RouterGroup) {
	group.GET("/:name", h.handleChart(false))
	group.GET("/:name/png", h.handleChart(true))
}

func (h *handlers) handleChart(png bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c)
		if err != nil {
			writeError(c, err, nil)
			return
		}
		ctx := c.Request.Context()
		chart, err := h.cfg.Analysis.Chart(ctx, c.Param("name"), p)
		if err != nil {
			if errors.Is(err, snapshot.ErrNoSnapshots) {
				c.JSON(http.StatusOK, gin.H{"empty": true, "message": err.Error()})
				return
			}
			writeError(c, err, nil)
			return
		}
		if !png {
			c.Data(http.StatusOK, "text/html; charset=utf-8", chart.HTML)
			return
		}
		img, err := h.cfg.PNG(ctx, chart)
		if err != nil {
			logger.Warnf("[api] chart %s png failed: %v", chart.Name, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", img)
	}
}
