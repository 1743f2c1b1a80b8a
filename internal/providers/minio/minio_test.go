package minio

import (
	"context"
	"os"
	"regexp"
	"testing"

	"client/internal/app/capture"
	"client/internal/config"

	"go.uber.org/zap/zaptest"
)

func TestGenerateObjectName(t *testing.T) {
	re := regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/[0-9a-f-]{36}\.ogg$`)
	if got := GenerateObjectName("Recording-1.OGG"); !re.MatchString(got) {
		t.Errorf("GenerateObjectName() = %q", got)
	}
	if a, b := GenerateObjectName("a.png"), GenerateObjectName("a.png"); a == b {
		t.Errorf("GenerateObjectName() repeated %q", a)
	}
}

// Runs against a real server when TEST_MINIO_URL is set.
func TestMinioProvider_PutRelease(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_URL")
	if endpoint == "" {
		t.Skip("TEST_MINIO_URL not set")
	}
	cfg := config.LoadConfig()
	cfg.MinioURL = endpoint

	p, err := NewMinioProvider(&cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewMinioProvider() error = %v", err)
	}
	ctx := context.Background()

	ref, err := p.Put(ctx, &capture.Blob{Name: "a.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\n")})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if len(p.objects) != 1 {
		t.Errorf("tracked objects = %d, want 1", len(p.objects))
	}
	if err := p.Release(ctx, ref); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := p.Release(ctx, ref); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}
