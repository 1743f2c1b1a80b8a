package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// AgentSenderID is the sender id the remote service uses for agent replies.
const AgentSenderID = "bot"

// Source records which producer last wrote a timeline entry.
type Source string

const (
	SourceOptimistic Source = "optimistic"
	SourceResponse   Source = "response"
	SourcePush       Source = "push"
	SourceRefetch    Source = "refetch"
	SourceCache      Source = "cache"
)

type Message struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"senderId"`
	ConversationID string    `json:"conversationId,omitempty"`
	Text           string    `json:"text,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	AudioURL       string    `json:"audioUrl,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Rating         *int      `json:"rating,omitempty"`
	Source         Source    `json:"source,omitempty"`
}

// Pending reports whether the entry is a local placeholder awaiting the server.
func (m Message) Pending() bool {
	return m.Source == SourceOptimistic
}

func (m Message) FromAgent() bool {
	return m.SenderID == AgentSenderID
}

// Resolve returns a copy whose media references are absolute against base.
func (m Message) Resolve(base string) Message {
	m.ImageURL = ResolveMediaURL(base, m.ImageURL)
	m.AudioURL = ResolveMediaURL(base, m.AudioURL)
	return m
}

// ResolveMediaURL joins a relative media path onto base with exactly one
// slash. Refs carrying a scheme (http, data, blob, pending) and empty refs
// are returned unchanged.
func ResolveMediaURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ref, "/")
}

// Push is a message received over the realtime channel of one session.
type Push struct {
	UserID  string  `json:"userId"`
	Message Message `json:"message"`
}

// wireMessage is the message shape of the remote service.
type wireMessage struct {
	ID             string  `json:"_id"`
	AltID          string  `json:"id"`
	SenderID       string  `json:"senderId"`
	ConversationID string  `json:"conversationId"`
	Text           *string `json:"text"`
	ImageURL       *string `json:"imageUrl"`
	Audio          *string `json:"audio"`
	AudioURL       *string `json:"audioUrl"`
	CreatedAt      string  `json:"createdAt"`
	Timestamp      string  `json:"timestamp"`
	Rating         *int    `json:"rating"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts RFC 3339 as well as the zone-less ISO form the
// service emits. Zone-less values are taken as UTC.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (w wireMessage) toMessage() Message {
	id := w.ID
	if id == "" {
		id = w.AltID
	}
	audio := deref(w.Audio)
	if audio == "" {
		audio = deref(w.AudioURL)
	}
	ts := w.CreatedAt
	if ts == "" {
		ts = w.Timestamp
	}
	return Message{
		ID:             id,
		SenderID:       w.SenderID,
		ConversationID: w.ConversationID,
		Text:           deref(w.Text),
		ImageURL:       deref(w.ImageURL),
		AudioURL:       audio,
		Timestamp:      parseTimestamp(ts),
		Rating:         w.Rating,
	}
}

// DecodeMessages decodes either a single message object or an array of them,
// preserving order. Entries without an id are rejected.
func DecodeMessages(data []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("failed to decode messages: empty body")
	}

	var wires []wireMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &wires); err != nil {
			return nil, fmt.Errorf("failed to decode message list: %w", err)
		}
	} else {
		var w wireMessage
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		wires = []wireMessage{w}
	}

	out := make([]Message, 0, len(wires))
	for i, w := range wires {
		m := w.toMessage()
		if m.ID == "" {
			return nil, fmt.Errorf("failed to decode message %d: missing id", i)
		}
		out = append(out, m)
	}
	return out, nil
}

// DecodeMessage decodes exactly one message, as carried by push events.
func DecodeMessage(data []byte) (Message, error) {
	msgs, err := DecodeMessages(data)
	if err != nil {
		return Message{}, err
	}
	if len(msgs) != 1 {
		return Message{}, fmt.Errorf("failed to decode message: got %d entries", len(msgs))
	}
	return msgs[0], nil
}
