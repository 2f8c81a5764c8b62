package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// VideoConverter turns a still image into a short video clip. YouTube
// has no image posts, so images become 5 second Shorts.
type VideoConverter interface {
	ImageToVideo(ctx context.Context, imageData []byte) (string, error)
}

type ffmpegConverter struct{}

func NewVideoConverter() VideoConverter {
	return &ffmpegConverter{}
}

// ImageToVideo writes the image to a temp file, renders a 5 second mp4
// with ffmpeg and returns the video path. The caller owns the returned
// file and must remove it.
func (c *ffmpegConverter) ImageToVideo(ctx context.Context, imageData []byte) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	imagePath := filepath.Join(os.TempDir(), fmt.Sprintf("frame-%s.jpg", id))
	videoPath := filepath.Join(os.TempDir(), fmt.Sprintf("clip-%s.mp4", id))

	if err := os.WriteFile(imagePath, imageData, 0o600); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer os.Remove(imagePath)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", "5",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		videoPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(videoPath)
		slog.Info(err.Error())
		return "", fmt.Errorf("ffmpeg conversion failed: %v: %s", err, out)
	}

	return videoPath, nil
}
