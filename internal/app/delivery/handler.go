package delivery

import (
	"context"
	"errors"
	"net/http"

	"client/internal/app/capture"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type Handler interface {
	Send(c *gin.Context)
	Status(c *gin.Context)
}

type handler struct {
	pipeline *Pipeline
	capture  *capture.Controller
}

func NewHandler(pipeline *Pipeline, controller *capture.Controller) Handler {
	return &handler{pipeline: pipeline, capture: controller}
}

type SendRequest struct {
	Text string `json:"text"`
}

type StatusResponse struct {
	RetryCount  int `json:"retryCount"`
	MaxAttempts int `json:"maxAttempts"`
}

// @Summary Send a message
// @Description Build a message from staged input and the optional body text and deliver it with bounded retries
// @Tags Messages
// @Accept json
// @Produce json
// @Param request body SendRequest false "Message text"
// @Success 201 {object} Result
// @Failure 400 {object} Result
// @Failure 401 {object} Result
// @Failure 415 {object} map[string]string
// @Failure 502 {object} Result
// @Failure 504 {object} Result
// @Router /api/messages [post]
func (h *handler) Send(c *gin.Context) {
	var req SendRequest
	if c.Request.ContentLength > 0 {
		if c.ContentType() != binding.MIMEJSON {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "request body must be application/json"})
			return
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	bundle, err := h.capture.BuildBundle(req.Text)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, capture.ErrEmptyPayload) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	// A client hanging up must not abort a send the server may already
	// have accepted.
	ctx := context.WithoutCancel(c.Request.Context())
	res := h.pipeline.Send(ctx, bundle)
	if res.OK {
		h.capture.Clear(ctx)
		c.JSON(http.StatusCreated, res)
		return
	}
	c.JSON(statusForClass(res.Failure), res)
}

// @Summary Get delivery status
// @Description Get the retry count of the send in flight and the attempt bound
// @Tags Messages
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /api/messages/status [get]
func (h *handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		RetryCount:  h.pipeline.RetryCount(),
		MaxAttempts: h.pipeline.MaxAttempts(),
	})
}

func statusForClass(class Class) int {
	switch class {
	case Unauthenticated:
		return http.StatusUnauthorized
	case RejectedRequest:
		return http.StatusBadRequest
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
