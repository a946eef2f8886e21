// Package engine turns stored audio into persisted notation artifacts. It is
// stateless between calls; every run is a pure function of the input file
// plus the external model's output.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/snarg/score-engine/internal/jobs"
	"github.com/snarg/score-engine/internal/notation"
	"github.com/snarg/score-engine/internal/store"
)

// Stage identifies which step of a transcription run failed.
type Stage string

const (
	StageDecode Stage = "decode"
	StageModel  Stage = "model"
	StageEncode Stage = "encode"
)

// StageError is an engine failure attributed to a pipeline stage. It is
// recorded on the job rather than propagated as a fatal error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Options configures the transcriber.
type Options struct {
	Detector        Detector
	Store           *store.ArtifactStore
	PreprocessAudio bool
	Log             zerolog.Logger
}

// Transcriber is the production engine: preprocess, detect, encode both
// formats, persist via the artifact store.
type Transcriber struct {
	detector   Detector
	store      *store.ArtifactStore
	preprocess bool
	log        zerolog.Logger
}

// New creates a transcriber.
func New(opts Options) *Transcriber {
	return &Transcriber{
		detector:   opts.Detector,
		store:      opts.Store,
		preprocess: opts.PreprocessAudio,
		log:        opts.Log.With().Str("component", "engine").Logger(),
	}
}

// Transcribe runs the full pipeline for one job's input file.
func (t *Transcriber) Transcribe(ctx context.Context, jobID, inputPath string) (jobs.Result, error) {
	modelInput := inputPath
	if t.preprocess {
		processed, cleanup, err := Preprocess(ctx, inputPath)
		if err != nil {
			return jobs.Result{}, &StageError{Stage: StageDecode, Err: err}
		}
		defer cleanup()
		modelInput = processed
	}

	events, err := t.detector.Detect(ctx, modelInput)
	if err != nil {
		return jobs.Result{}, &StageError{Stage: StageModel, Err: err}
	}
	t.log.Debug().
		Str("job_id", jobID).
		Str("model", t.detector.Model()).
		Int("notes", len(events)).
		Msg("pitch detection complete")

	midiBytes, err := notation.EncodeMIDI(events)
	if err != nil {
		return jobs.Result{}, &StageError{Stage: StageEncode, Err: err}
	}
	xmlBytes, err := notation.EncodeMusicXML(events)
	if err != nil {
		return jobs.Result{}, &StageError{Stage: StageEncode, Err: err}
	}

	midiPath, err := t.store.SaveArtifact(jobID, store.KindMIDI, midiBytes)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("persist midi: %w", err)
	}
	xmlPath, err := t.store.SaveArtifact(jobID, store.KindMusicXML, xmlBytes)
	if err != nil {
		t.store.Remove(midiPath)
		return jobs.Result{}, fmt.Errorf("persist musicxml: %w", err)
	}

	return jobs.Result{
		MIDIPath:      midiPath,
		MusicXMLPath:  xmlPath,
		NotesDetected: len(events),
	}, nil
}
