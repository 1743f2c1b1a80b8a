package capture

import (
	"errors"
	"strings"
)

var (
	ErrDeviceUnavailable    = errors.New("audio device unavailable")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrEmptyPayload         = errors.New("message is empty")
	ErrPayloadTooLarge      = errors.New("attachment too large")
	ErrRecordingInProgress  = errors.New("recording in progress")
)

// Blob is binary media with its declared content type. Blobs are never
// modified after they are staged.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// A Bundle is the payload of one send: TextOnly or WithAttachments.
type Bundle interface {
	Content() string
	isBundle()
}

type TextOnly struct {
	Text string
}

func (b TextOnly) Content() string { return b.Text }
func (TextOnly) isBundle()         {}

// WithAttachments carries at least one of Image or Audio.
type WithAttachments struct {
	Text  string
	Image *Blob
	Audio *Blob
}

func (b WithAttachments) Content() string { return b.Text }
func (WithAttachments) isBundle()         {}

// NewBundle picks the bundle variant for the given parts. Text is trimmed;
// empty blobs count as absent.
func NewBundle(text string, image, audio *Blob) (Bundle, error) {
	text = strings.TrimSpace(text)
	if image.Size() == 0 {
		image = nil
	}
	if audio.Size() == 0 {
		audio = nil
	}

	switch {
	case image == nil && audio == nil && text == "":
		return nil, ErrEmptyPayload
	case image == nil && audio == nil:
		return TextOnly{Text: text}, nil
	default:
		return WithAttachments{Text: text, Image: image, Audio: audio}, nil
	}
}
