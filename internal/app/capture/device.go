package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// A Device grants access to an audio input. Acquire is called once per
// controller; an error means permission was denied for the session.
type Device interface {
	Acquire(ctx context.Context) (Recorder, error)
}

// A Recorder is an acquired audio input that emits encoded data in chunks.
type Recorder interface {
	Supports(mimeType string) bool
	// Start begins a take; onChunk may be called from another goroutine.
	Start(mimeType string, onChunk func([]byte)) error
	// Stop ends the take. All chunks have been delivered when it returns.
	Stop() error
}

// A Stream is a live source of encoded audio.
type Stream interface {
	io.Reader
	// Stop asks the source to finish; Read then drains to io.EOF.
	Stop() error
	// Close releases the source once it has been drained.
	Close() error
}

// StreamDevice turns a stream opener into a recorder that slices the stream
// into chunks every timeslice.
type StreamDevice struct {
	Open      func(ctx context.Context, mimeType string) (Stream, error)
	Types     []string
	Timeslice time.Duration
}

func (d *StreamDevice) Acquire(ctx context.Context) (Recorder, error) {
	if d == nil || d.Open == nil {
		return nil, errors.New("no audio input configured")
	}
	slice := d.Timeslice
	if slice <= 0 {
		slice = time.Second
	}
	return &streamRecorder{device: d, ctx: ctx, timeslice: slice}, nil
}

// NewCommandDevice records by running command and reading its stdout.
// "{format}" in the command is replaced by the container extension, e.g.
// "ffmpeg -f alsa -i default -f {format} -".
func NewCommandDevice(command string, types []string, timeslice time.Duration) Device {
	return &commandDevice{
		fields: strings.Fields(command),
		inner: StreamDevice{
			Types:     types,
			Timeslice: timeslice,
		},
	}
}

type commandDevice struct {
	fields []string
	inner  StreamDevice
}

func (d *commandDevice) Acquire(ctx context.Context) (Recorder, error) {
	if len(d.fields) == 0 {
		return nil, errors.New("no recorder command configured")
	}
	if _, err := exec.LookPath(d.fields[0]); err != nil {
		return nil, fmt.Errorf("recorder not available: %w", err)
	}
	inner := d.inner
	inner.Open = d.open
	return inner.Acquire(ctx)
}

func (d *commandDevice) open(ctx context.Context, mimeType string) (Stream, error) {
	format := strings.TrimPrefix(extensionFor(mimeType), ".")
	args := make([]string, 0, len(d.fields)-1)
	for _, f := range d.fields[1:] {
		args = append(args, strings.ReplaceAll(f, "{format}", format))
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, d.fields[0], args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open recorder output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}
	return &commandStream{cmd: cmd, stdout: stdout, cancel: cancel}, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	stdout io.Reader
	cancel context.CancelFunc
}

func (s *commandStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *commandStream) Stop() error {
	s.cancel()
	return nil
}

func (s *commandStream) Close() error {
	s.cancel()
	if err := s.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Interrupted recorders commonly exit non-zero.
			return nil
		}
		return err
	}
	return nil
}

type streamRecorder struct {
	device    *StreamDevice
	ctx       context.Context
	timeslice time.Duration

	mu     sync.Mutex
	stream Stream
	done   chan struct{}
}

func (r *streamRecorder) Supports(mimeType string) bool {
	for _, t := range r.device.Types {
		if strings.EqualFold(t, mimeType) {
			return true
		}
	}
	return false
}

func (r *streamRecorder) Start(mimeType string, onChunk func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		return ErrRecordingInProgress
	}

	stream, err := r.device.Open(r.ctx, mimeType)
	if err != nil {
		return err
	}
	r.stream = stream
	r.done = make(chan struct{})
	go r.pump(stream, onChunk, r.done)
	return nil
}

func (r *streamRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return nil
	}

	err := r.stream.Stop()
	<-r.done
	if cerr := r.stream.Close(); err == nil {
		err = cerr
	}
	r.stream = nil
	return err
}

func (r *streamRecorder) pump(src io.Reader, onChunk func([]byte), done chan struct{}) {
	defer close(done)

	data := make(chan []byte)
	go func() {
		defer close(data)
		buf := make([]byte, 32*1024)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				b := make([]byte, n)
				copy(b, buf[:n])
				data <- b
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(r.timeslice)
	defer ticker.Stop()

	var pending []byte
	flush := func() {
		if len(pending) > 0 {
			onChunk(pending)
			pending = nil
		}
	}
	for {
		select {
		case b, ok := <-data:
			if !ok {
				flush()
				return
			}
			pending = append(pending, b...)
		case <-ticker.C:
			flush()
		}
	}
}

var extensions = map[string]string{
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// extensionFor maps a content type to a file extension with a leading dot.
func extensionFor(contentType string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ext, ok := extensions[base]; ok {
		return ext
	}
	if m := mimetype.Lookup(base); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if i := strings.IndexByte(base, '/'); i >= 0 && i < len(base)-1 {
		return "." + base[i+1:]
	}
	return ".bin"
}
