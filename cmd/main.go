package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"client/internal/app"
	"client/internal/app/capture"
	"client/internal/config"
	"client/internal/utils"

	"go.uber.org/zap"
)

// One-shot sender: restores a session, sends one message and prints the
// resulting timeline.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		token = flag.String("token", os.Getenv("SESSION_TOKEN"), "session token")
		text  = flag.String("text", "", "message text")
		image = flag.String("image", "", "path of an image to attach")
		audio = flag.String("audio", "", "path of an audio file to attach")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer logger.Sync()

	utils.LoadEnv(logger)
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.Bootstrap(ctx, &cfg, logger)
	if err != nil {
		logger.Fatal("Failed to bootstrap application", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		application.Shutdown(shutdownCtx)
	}()

	if _, err := application.Sessions.Restore(ctx, *token); err != nil {
		logger.Fatal("Failed to restore session", zap.Error(err))
	}

	stage := func(path string, set func(context.Context, string, string, []byte) (*capture.Staged, error)) {
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("Failed to read attachment", zap.String("path", path), zap.Error(err))
		}
		if _, err := set(ctx, filepath.Base(path), "", data); err != nil {
			logger.Fatal("Failed to stage attachment", zap.String("path", path), zap.Error(err))
		}
	}
	stage(*image, application.Capture.SetImage)
	stage(*audio, application.Capture.SetAudio)

	bundle, err := application.Capture.BuildBundle(*text)
	if err != nil {
		logger.Fatal("Nothing to send", zap.Error(err))
	}

	res := application.Pipeline.Send(ctx, bundle)
	if !res.OK {
		fmt.Fprintln(os.Stderr, res.Notice)
		logger.Error("Send failed",
			zap.Int("attempts", res.Attempts),
			zap.Stringer("failure_class", res.Failure),
			zap.Error(res.Err),
		)
		return 1
	}
	application.Pipeline.Wait()

	for _, m := range application.Timeline.Messages() {
		m = m.Resolve(cfg.MediaBaseURL)
		fmt.Printf("%s  %-8s %s\n", m.Timestamp.Local().Format("15:04:05"), m.SenderID, m.Text)
		if m.ImageURL != "" {
			fmt.Printf("%19s image: %s\n", "", m.ImageURL)
		}
		if m.AudioURL != "" {
			fmt.Printf("%19s audio: %s\n", "", m.AudioURL)
		}
	}
	return 0
}
