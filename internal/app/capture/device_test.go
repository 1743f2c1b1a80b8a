package capture

import (
	"context"
	"io"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type pipeStream struct {
	*io.PipeReader
	w *io.PipeWriter
}

func (s *pipeStream) Stop() error  { return s.w.Close() }
func (s *pipeStream) Close() error { return nil }

func TestStreamDevice_ChunksAreCollected(t *testing.T) {
	var stream *pipeStream
	opened := make(chan struct{})
	dev := &StreamDevice{
		Types:     []string{"audio/ogg"},
		Timeslice: 5 * time.Millisecond,
		Open: func(ctx context.Context, mimeType string) (Stream, error) {
			if mimeType != "audio/ogg" {
				t.Errorf("Open() mime = %q", mimeType)
			}
			r, w := io.Pipe()
			stream = &pipeStream{PipeReader: r, w: w}
			close(opened)
			return stream, nil
		},
	}

	c := NewController(context.Background(), dev, nil, Options{}, zaptest.NewLogger(t))
	if err := c.StartRecording(); err != nil {
		t.Fatalf("StartRecording() = %v", err)
	}
	<-opened

	if _, err := stream.w.Write([]byte("ab")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := stream.w.Write([]byte("cd")); err != nil {
		t.Fatal(err)
	}

	staged, err := c.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("StopRecording() = %v", err)
	}
	if staged == nil || string(staged.Blob.Data) != "abcd" {
		t.Fatalf("StopRecording() = %+v, want audio %q", staged, "abcd")
	}
}

func TestCommandDevice_Acquire(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{name: "Unconfigured", command: ""},
		{name: "MissingBinary", command: "definitely-not-a-recorder-binary -f {format} -"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewCommandDevice(tt.command, []string{"audio/webm"}, time.Second)
			if _, err := dev.Acquire(context.Background()); err == nil {
				t.Fatal("Acquire() = nil error, want failure")
			}
		})
	}
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{
		"audio/webm":             ".webm",
		"audio/ogg":              ".ogg",
		"audio/webm;codecs=opus": ".webm",
		"image/png":              ".png",
		"application/x-whatever": ".x-whatever",
		"garbage":                ".bin",
	}
	for in, want := range tests {
		if got := extensionFor(in); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", in, got, want)
		}
	}
}
