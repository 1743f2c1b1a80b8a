package timeline

import (
	"errors"
	"net/http"

	"client/internal/app/message"

	"github.com/gin-gonic/gin"
)

type Handler interface {
	List(c *gin.Context)
	Refresh(c *gin.Context)
	Rate(c *gin.Context)
}

type handler struct {
	store     *Store
	mediaBase string
}

func NewHandler(store *Store, mediaBase string) Handler {
	return &handler{store: store, mediaBase: mediaBase}
}

type ListResponse struct {
	Messages      []message.Message `json:"messages"`
	IsLoading     bool              `json:"isLoading"`
	IsSending     bool              `json:"isSending"`
	AwaitingReply bool              `json:"awaitingReply"`
}

type RateRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

// @Summary Get timeline
// @Description Get the ordered messages with media URLs resolved
// @Tags Timeline
// @Produce json
// @Success 200 {object} ListResponse
// @Router /api/timeline [get]
func (h *handler) List(c *gin.Context) {
	msgs := h.store.Messages()
	for i := range msgs {
		msgs[i] = msgs[i].Resolve(h.mediaBase)
	}
	c.JSON(http.StatusOK, ListResponse{
		Messages:      msgs,
		IsLoading:     h.store.IsLoading(),
		IsSending:     h.store.IsSending(),
		AwaitingReply: h.store.AwaitingReply(),
	})
}

// @Summary Refresh timeline
// @Description Refetch the timeline from the server, replacing local state
// @Tags Timeline
// @Produce json
// @Success 200 {object} ListResponse
// @Failure 401 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/timeline/refresh [post]
func (h *handler) Refresh(c *gin.Context) {
	if err := h.store.Refetch(c.Request.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrNoSession) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.List(c)
}

// @Summary Rate a message
// @Description Record a 1 to 5 rating for a persisted message
// @Tags Timeline
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param request body RateRequest true "Rating"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/timeline/{id}/rating [post]
func (h *handler) Rate(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidRating.Error()})
		return
	}

	err := h.store.Rate(c.Request.Context(), c.Param("id"), req.Rating)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "rating": req.Rating})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidRating), errors.Is(err, ErrNotPersisted):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
