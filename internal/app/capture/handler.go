package capture

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler interface {
	Status(c *gin.Context)
	SetText(c *gin.Context)
	SetImage(c *gin.Context)
	SetAudio(c *gin.Context)
	Clear(c *gin.Context)
	StartRecording(c *gin.Context)
	StopRecording(c *gin.Context)
	Preview(c *gin.Context)
}

type handler struct {
	controller *Controller
	previews   *MemoryPreviews
	maxSize    int64
}

// NewHandler serves the controller. previews may be nil when previews are
// stored elsewhere.
func NewHandler(controller *Controller, previews *MemoryPreviews, maxSize int64) Handler {
	return &handler{controller: controller, previews: previews, maxSize: maxSize}
}

type TextRequest struct {
	Text string `json:"text"`
}

type stageFunc func(ctx context.Context, name, contentType string, data []byte) (*Staged, error)

// @Summary Get capture state
// @Description Get the recording state, staged text and staged media
// @Tags Capture
// @Produce json
// @Success 200 {object} Status
// @Router /api/capture [get]
func (h *handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

// @Summary Stage text
// @Description Stage the draft text of the next message
// @Tags Capture
// @Accept json
// @Produce json
// @Success 200 {object} Status
// @Failure 400 {object} map[string]string
// @Router /api/capture/text [post]
func (h *handler) SetText(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.controller.SetText(req.Text)
	c.JSON(http.StatusOK, h.controller.Status())
}

// @Summary Stage an image
// @Description Stage an image attachment and register a preview
// @Tags Capture
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image file"
// @Success 200 {object} StagedState
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Router /api/capture/image [post]
func (h *handler) SetImage(c *gin.Context) {
	h.stage(c, "image", h.controller.SetImage)
}

// @Summary Stage an audio file
// @Description Stage a prerecorded audio attachment
// @Tags Capture
// @Accept multipart/form-data
// @Produce json
// @Param audio formData file true "Audio file"
// @Success 200 {object} StagedState
// @Failure 400 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Router /api/capture/audio [post]
func (h *handler) SetAudio(c *gin.Context) {
	h.stage(c, "audio", h.controller.SetAudio)
}

func (h *handler) stage(c *gin.Context, field string, set stageFunc) {
	file, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file is required"})
		return
	}
	if file.Size > h.maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": ErrPayloadTooLarge.Error()})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open file"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	staged, err := set(c.Request.Context(), file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stagedState(staged))
}

// @Summary Clear staged input
// @Description Drop staged text and media and abandon a running take
// @Tags Capture
// @Produce json
// @Success 204
// @Router /api/capture [delete]
func (h *handler) Clear(c *gin.Context) {
	h.controller.Clear(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// @Summary Start recording
// @Description Start capturing audio from the recorder device
// @Tags Capture
// @Produce json
// @Success 200 {object} Status
// @Failure 409 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/capture/recording/start [post]
func (h *handler) StartRecording(c *gin.Context) {
	if err := h.controller.StartRecording(); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.controller.Status())
}

// @Summary Stop recording
// @Description Finish the take and stage it as audio. Answers 204 when nothing was captured
// @Tags Capture
// @Produce json
// @Success 200 {object} StagedState
// @Success 204
// @Router /api/capture/recording/stop [post]
func (h *handler) StopRecording(c *gin.Context) {
	staged, err := h.controller.StopRecording(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if staged == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, stagedState(staged))
}

// @Summary Get a preview
// @Description Serve a staged image or recording for local playback
// @Tags Capture
// @Param ref path string true "Preview reference"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]string
// @Router /api/capture/previews/{ref} [get]
func (h *handler) Preview(c *gin.Context) {
	if h.previews == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "previews are not served locally"})
		return
	}
	blob, ok := h.previews.Get(c.Param("ref"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, blob.ContentType, blob.Data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrRecordingInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
