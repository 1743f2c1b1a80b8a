package health

import (
	"net/http"

	"client/internal/utils"

	"github.com/gin-gonic/gin"
)

type Handler interface {
	Check(c *gin.Context)
}

type handler struct {
	checker *utils.HealthChecker
}

func NewHandler(checker *utils.HealthChecker) Handler {
	return &handler{checker: checker}
}

// @Summary Health check
// @Description Report API, Redis and realtime status. Answers 503 only when the chat API is unreachable
// @Tags Health
// @Produce json
// @Success 200 {object} utils.HealthStatus
// @Failure 503 {object} utils.HealthStatus
// @Router /api/health [get]
func (h *handler) Check(c *gin.Context) {
	status := h.checker.Check(c.Request.Context())
	code := http.StatusOK
	for _, s := range status.Services {
		if s.Name == "API" && s.Status != "up" {
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, status)
}
