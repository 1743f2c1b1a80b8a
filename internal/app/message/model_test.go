package message

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestResolveMediaURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{name: "Empty", base: "http://localhost:8080", ref: "", want: ""},
		{name: "AbsoluteHTTP", base: "http://localhost:8080", ref: "http://cdn.example.com/a.png", want: "http://cdn.example.com/a.png"},
		{name: "AbsoluteHTTPS", base: "http://localhost:8080", ref: "HTTPS://cdn.example.com/a.png", want: "HTTPS://cdn.example.com/a.png"},
		{name: "LeadingSlash", base: "http://localhost:8080", ref: "/uploads/a.png", want: "http://localhost:8080/uploads/a.png"},
		{name: "NoSlashes", base: "http://localhost:8080", ref: "uploads/a.png", want: "http://localhost:8080/uploads/a.png"},
		{name: "BothSlashes", base: "http://localhost:8080/", ref: "/uploads/a.png", want: "http://localhost:8080/uploads/a.png"},
		{name: "PendingDraft", base: "http://localhost:8080", ref: "pending:photo.png", want: "pending:photo.png"},
		{name: "DataURI", base: "http://localhost:8080", ref: "data:image/png;base64,iVBORw0KGgo=", want: "data:image/png;base64,iVBORw0KGgo="},
		{name: "BlobURL", base: "http://localhost:8080", ref: "blob:http://localhost:5173/4c1e", want: "blob:http://localhost:5173/4c1e"},
		{name: "BaseWithPath", base: "http://host/media//", ref: "//a.mp3", want: "http://host/media/a.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveMediaURL(tt.base, tt.ref); got != tt.want {
				t.Errorf("ResolveMediaURL(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
			}
		})
	}
}

func TestMessage_Resolve(t *testing.T) {
	m := Message{ID: "1", ImageURL: "/img/1.png", AudioURL: "https://x/y.mp3"}
	got := m.Resolve("http://media")
	if got.ImageURL != "http://media/img/1.png" || got.AudioURL != "https://x/y.mp3" {
		t.Errorf("Resolve() = %+v", got)
	}
	if m.ImageURL != "/img/1.png" {
		t.Errorf("Resolve mutated the receiver")
	}
}

func TestMessage_ResolveKeepsDraftRefs(t *testing.T) {
	m := Message{ID: "local-1", ImageURL: "pending:photo.png", AudioURL: "pending:recording-1.webm", Source: SourceOptimistic}
	got := m.Resolve("http://localhost:8080")
	if got.ImageURL != m.ImageURL || got.AudioURL != m.AudioURL {
		t.Errorf("Resolve() = %+v, want draft refs untouched", got)
	}
}

func TestDecodeMessages(t *testing.T) {
	five := 5
	tests := []struct {
		name    string
		body    string
		want    []Message
		wantErr string
	}{
		{
			name: "Array",
			body: `[
				{"_id": "7-user", "senderId": "42", "conversationId": "42", "text": "hello", "imageUrl": "/uploads/a.png", "audio": null, "createdAt": "2024-05-01T10:00:00.123456"},
				{"_id": "7-bot", "senderId": "bot", "conversationId": "42", "text": "hi", "audio": "/audio/7.mp3", "createdAt": "2024-05-01T10:00:01"}
			]`,
			want: []Message{
				{ID: "7-user", SenderID: "42", ConversationID: "42", Text: "hello", ImageURL: "/uploads/a.png", Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
				{ID: "7-bot", SenderID: "bot", ConversationID: "42", Text: "hi", AudioURL: "/audio/7.mp3", Timestamp: time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC)},
			},
		},
		{
			name: "Single",
			body: `{"id": "9", "senderId": "bot", "audioUrl": "a.ogg", "timestamp": "2024-05-01T10:00:00Z", "rating": 5}`,
			want: []Message{
				{ID: "9", SenderID: "bot", AudioURL: "a.ogg", Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Rating: &five},
			},
		},
		{
			name: "BadTimestampIsZero",
			body: `{"_id": "1", "senderId": "u", "createdAt": "yesterday"}`,
			want: []Message{{ID: "1", SenderID: "u"}},
		},
		{
			name:    "MissingID",
			body:    `[{"_id": "1"}, {"text": "x"}]`,
			wantErr: "missing id",
		},
		{
			name:    "Empty",
			body:    `  `,
			wantErr: "empty body",
		},
		{
			name:    "Garbage",
			body:    `{"_id": `,
			wantErr: "failed to decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessages([]byte(tt.body))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("DecodeMessages() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMessages() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeMessages() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMessage_RejectsLists(t *testing.T) {
	if _, err := DecodeMessage([]byte(`[{"_id":"1"},{"_id":"2"}]`)); err == nil {
		t.Fatal("DecodeMessage() accepted a two-element list")
	}
	m, err := DecodeMessage([]byte(`{"_id":"1","senderId":"bot"}`))
	if err != nil || m.ID != "1" || !m.FromAgent() {
		t.Fatalf("DecodeMessage() = %+v, %v", m, err)
	}
}
