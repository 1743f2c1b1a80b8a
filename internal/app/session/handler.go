package session

import (
	"errors"
	"net/http"

	"client/internal/providers/remote"

	"github.com/gin-gonic/gin"
)

type Handler interface {
	Current(c *gin.Context)
	Login(c *gin.Context)
	Restore(c *gin.Context)
	Logout(c *gin.Context)
}

type handler struct {
	service Service
}

func NewHandler(service Service) Handler {
	return &handler{service: service}
}

// @Summary Get current session
// @Description Get the identity the agent acts for
// @Tags Session
// @Produce json
// @Success 200 {object} Session
// @Failure 401 {object} map[string]string
// @Router /api/session [get]
func (h *handler) Current(c *gin.Context) {
	sess, ok := h.service.Current()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrNoSession.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// @Summary Log in
// @Description Authenticate with email and password and start a session
// @Tags Session
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Session
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/session/login [post]
func (h *handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// @Summary Restore a session
// @Description Start a session from an existing token
// @Tags Session
// @Accept json
// @Produce json
// @Param request body RestoreRequest true "Token"
// @Success 200 {object} Session
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/session/restore [post]
func (h *handler) Restore(c *gin.Context) {
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	sess, err := h.service.Restore(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// @Summary Log out
// @Description End the session and revoke the token remotely
// @Tags Session
// @Produce json
// @Success 204
// @Failure 401 {object} map[string]string
// @Router /api/session/logout [post]
func (h *handler) Logout(c *gin.Context) {
	if err := h.service.Logout(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func statusFor(err error) int {
	var se *remote.StatusError
	switch {
	case errors.Is(err, ErrNoSession):
		return http.StatusUnauthorized
	case errors.As(err, &se) && se.Code < 500:
		return se.Code
	default:
		return http.StatusBadGateway
	}
}
