package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// soxAvailable caches whether sox is in PATH (checked once at startup).
var soxAvailable *bool

// CheckSox checks if sox is available in PATH. Call once at startup.
func CheckSox() bool {
	if soxAvailable != nil {
		return *soxAvailable
	}
	_, err := exec.LookPath("sox")
	avail := err == nil
	soxAvailable = &avail
	return avail
}

// Preprocess resamples the input to the 22.05kHz mono WAV the pitch-detection
// model expects, using sox. Returns the path to a temporary WAV file and a
// cleanup function. If sox is unavailable, returns the original path with a
// no-op cleanup and lets the model's own resampler handle the input.
func Preprocess(ctx context.Context, inputPath string) (string, func(), error) {
	noop := func() {}

	if !CheckSox() {
		return inputPath, noop, nil
	}

	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("score-engine-preprocess-%d-%s.wav", os.Getpid(), filepath.Base(inputPath)))

	cmd := exec.CommandContext(ctx, "sox",
		inputPath, outPath,
		"rate", "22050",
		"channels", "1",
		"norm",
	)
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return inputPath, noop, fmt.Errorf("sox resample: %w", err)
	}

	cleanup := func() {
		os.Remove(outPath)
	}
	return outPath, cleanup, nil
}
