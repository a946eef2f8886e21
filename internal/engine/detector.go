package engine

import (
	"context"

	"github.com/snarg/score-engine/internal/notation"
)

// Detector is the capability interface for pitch-detection backends: audio
// file in, note events out. Substitutable by a stub in tests.
type Detector interface {
	Detect(ctx context.Context, audioPath string) ([]notation.NoteEvent, error)
	Name() string  // "basic-pitch"
	Model() string // model identifier for logs and health reporting
}
