package video

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/config"
)

// Encoder runs one external encoder invocation.
type Encoder interface {
	Encode(ctx context.Context, args []string) error
}

// FFmpegEncoder runs the ffmpeg binary, appending its output to the daily ffmpeg log.
type FFmpegEncoder struct {
	Binary string
}

// NewFFmpegEncoder returns an encoder for the configured ffmpeg binary.
func NewFFmpegEncoder(binary string) *FFmpegEncoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEncoder{Binary: binary}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, e.Binary, args...)

	logFile, err := os.OpenFile(config.GetFFmpegLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open FFmpeg log file: %w", err)
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "\n$ %s %s\n", e.Binary, strings.Join(args, " "))
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Run(); err != nil {
		return apperr.Wrap(apperr.EncodeFailure, err, "ffmpeg execution failed")
	}
	return nil
}

// DefaultThreads is the encoder thread count: one per CPU, capped at 8.
func DefaultThreads() int {
	threads := runtime.NumCPU()
	if threads > 8 { // Cap threads to 8 to avoid excessive resource usage for FFmpeg
		threads = 8
	}
	if threads < 1 {
		threads = 1
	}
	log.Printf("Detected %d CPU cores, setting FFmpeg threads to %d.", runtime.NumCPU(), threads)
	return threads
}
