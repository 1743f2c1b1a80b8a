package capture

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"client/internal/utils"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Staged is an attachment waiting to be sent together with its preview.
type Staged struct {
	Blob    *Blob
	Preview string
}

type Options struct {
	// PreferredTypes lists audio containers in order of preference. The last
	// entry is used when the recorder supports none of them.
	PreferredTypes []string
	MaxSize        int64
	// Events receives the controller Status after every change.
	Events Publisher
}

type Publisher interface {
	Publish(event string, data interface{})
}

// Controller owns the audio input and the staged attachments of the next
// message. A denied device disables recording for the controller's lifetime.
type Controller struct {
	mu sync.Mutex

	recorder   Recorder
	acquireErr error
	mimeType   string
	state      State
	current    *take

	text  string
	image *Staged
	audio *Staged

	previews PreviewStore
	events   Publisher
	maxSize  int64
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// take collects the chunks of one recording.
type take struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (t *take) add(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	t.mu.Lock()
	t.chunks = append(t.chunks, chunk)
	t.mu.Unlock()
}

func (t *take) bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Join(t.chunks, nil)
}

// NewController acquires the device once. Acquisition failures are logged
// and remembered; they do not prevent staging images or text.
func NewController(ctx context.Context, device Device, previews PreviewStore, opts Options, logger *zap.Logger) *Controller {
	if len(opts.PreferredTypes) == 0 {
		opts.PreferredTypes = []string{"audio/webm", "audio/ogg"}
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 10 * 1024 * 1024
	}

	c := &Controller{
		previews: previews,
		events:   opts.Events,
		maxSize:  opts.MaxSize,
		logger:   logger.Sugar(),
		now:      time.Now,
	}

	if device == nil {
		c.acquireErr = fmt.Errorf("no audio device")
	} else if rec, err := device.Acquire(ctx); err != nil {
		c.acquireErr = err
	} else {
		c.recorder = rec
		c.mimeType = opts.PreferredTypes[len(opts.PreferredTypes)-1]
		for _, t := range opts.PreferredTypes {
			if rec.Supports(t) {
				c.mimeType = t
				break
			}
		}
	}

	if c.acquireErr != nil {
		c.logger.Warnw("Audio device unavailable, recording disabled", "error", c.acquireErr)
	} else {
		c.logger.Infow("Audio device acquired", "mime_type", c.mimeType)
	}
	return c
}

// Available reports whether recording is possible in this session.
func (c *Controller) Available() bool {
	return c.recorder != nil
}

func (c *Controller) MimeType() string {
	return c.mimeType
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartRecording begins a take. It is a no-op while already recording.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recorder == nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, c.acquireErr)
	}
	if c.state == Recording {
		return nil
	}

	t := &take{}
	if err := c.recorder.Start(c.mimeType, t.add); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	c.current = t
	c.state = Recording
	c.notifyLocked()
	c.logger.Debugw("Recording started", "mime_type", c.mimeType)
	return nil
}

// StopRecording ends the take and stages its audio. It returns nil without
// error when idle or when the take produced no data.
func (c *Controller) StopRecording(ctx context.Context) (*Staged, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording {
		return nil, nil
	}

	err := c.recorder.Stop()
	t := c.current
	c.current = nil
	c.state = Idle
	defer c.notifyLocked()
	if err != nil {
		c.logger.Warnw("Recorder stopped with error", "error", err)
	}

	data := t.bytes()
	if len(data) == 0 {
		c.logger.Debugw("Recording produced no data")
		return nil, nil
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}

	blob := &Blob{
		Name:        fmt.Sprintf("recording-%d%s", c.now().UnixMilli(), extensionFor(c.mimeType)),
		ContentType: c.mimeType,
		Data:        data,
	}
	c.releaseLocked(ctx, c.audio)
	c.audio = c.stageLocked(ctx, blob)
	c.logger.Infow("Recording staged", "name", blob.Name, "size", len(data))
	return c.audio, nil
}

// SetImage stages an image, replacing any previous one. An empty content
// type is sniffed from the data.
func (c *Controller) SetImage(ctx context.Context, name, contentType string, data []byte) (*Staged, error) {
	blob, err := c.newBlob(name, contentType, data, "image/")
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(ctx, c.image)
	c.image = c.stageLocked(ctx, blob)
	c.notifyLocked()
	return c.image, nil
}

// SetAudio stages an existing audio file instead of a recording.
func (c *Controller) SetAudio(ctx context.Context, name, contentType string, data []byte) (*Staged, error) {
	blob, err := c.newBlob(name, contentType, data, "audio/")
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Recording {
		return nil, ErrRecordingInProgress
	}
	c.releaseLocked(ctx, c.audio)
	c.audio = c.stageLocked(ctx, blob)
	c.notifyLocked()
	return c.audio, nil
}

func (c *Controller) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.notifyLocked()
	c.mu.Unlock()
}

// Clear drops staged text and media, releases their previews and abandons
// a running take.
func (c *Controller) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Recording {
		if err := c.recorder.Stop(); err != nil {
			c.logger.Warnw("Recorder stopped with error", "error", err)
		}
		c.current = nil
		c.state = Idle
	}
	c.releaseLocked(ctx, c.image)
	c.releaseLocked(ctx, c.audio)
	c.image, c.audio, c.text = nil, nil, ""
	c.notifyLocked()
}

// BuildBundle combines text with the staged media. Blank text falls back to
// the staged draft.
func (c *Controller) BuildBundle(text string) (Bundle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		text = c.text
	}
	var image, audio *Blob
	if c.image != nil {
		image = c.image.Blob
	}
	if c.audio != nil {
		audio = c.audio.Blob
	}
	return NewBundle(text, image, audio)
}

// Status is a read-only view of the controller for the UI.
type Status struct {
	State     string       `json:"state"`
	Available bool         `json:"available"`
	MimeType  string       `json:"mimeType,omitempty"`
	Text      string       `json:"text,omitempty"`
	Image     *StagedState `json:"image,omitempty"`
	Audio     *StagedState `json:"audio,omitempty"`
}

type StagedState struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Preview     string `json:"preview,omitempty"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) notifyLocked() {
	if c.events != nil {
		c.events.Publish(utils.EventCaptureChanged, c.statusLocked())
	}
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:     c.state.String(),
		Available: c.recorder != nil,
		MimeType:  c.mimeType,
		Text:      c.text,
		Image:     stagedState(c.image),
		Audio:     stagedState(c.audio),
	}
}

func stagedState(s *Staged) *StagedState {
	if s == nil {
		return nil
	}
	return &StagedState{
		Name:        s.Blob.Name,
		ContentType: s.Blob.ContentType,
		Size:        s.Blob.Size(),
		Preview:     s.Preview,
	}
}

func (c *Controller) newBlob(name, contentType string, data []byte, family string) (*Blob, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedMediaType)
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !strings.HasPrefix(base, family) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, base)
	}
	if name == "" {
		name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(family, "/"), c.now().UnixMilli(), extensionFor(base))
	}
	return &Blob{Name: name, ContentType: base, Data: data}, nil
}

func (c *Controller) stageLocked(ctx context.Context, blob *Blob) *Staged {
	s := &Staged{Blob: blob}
	if c.previews == nil {
		return s
	}
	ref, err := c.previews.Put(ctx, blob)
	if err != nil {
		c.logger.Warnw("Failed to create preview", "name", blob.Name, "error", err)
		return s
	}
	s.Preview = ref
	return s
}

func (c *Controller) releaseLocked(ctx context.Context, s *Staged) {
	if s == nil || s.Preview == "" || c.previews == nil {
		return
	}
	if err := c.previews.Release(ctx, s.Preview); err != nil {
		c.logger.Warnw("Failed to release preview", "preview", s.Preview, "error", err)
	}
}
