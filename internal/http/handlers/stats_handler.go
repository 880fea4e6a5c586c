package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-line-crm/internal/services"
)

// StatsHandler exposes the dashboard overview endpoint.
type StatsHandler struct {
	Svc *services.StatsService
}

// Overview handles GET /stats.
//
// @Summary      Dashboard overview
// @Description  Returns headline counters (contacts, active contacts, messages, unread) and the configured capacity limits.
// @Tags         stats
// @Produce      json
// @Success      200  {object}  services.OverviewResult
// @Failure      500  {object}  ErrorResponse
// @Router       /stats [get]
func (h *StatsHandler) Overview(c *gin.Context) {
	out, err := h.Svc.Overview(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "unable to compute overview")
		return
	}
	ok(c, http.StatusOK, out)
}
