package jobs

import "errors"

var (
	// ErrNotFound means the job id is unknown, or the requested artifact has
	// not been produced.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyRunning means a run is in flight for the job; callers should
	// poll status rather than retry.
	ErrAlreadyRunning = errors.New("job is already processing")

	// ErrInvalidState means the job is not in a runnable state. Completed
	// results are immutable and are never re-processed.
	ErrInvalidState = errors.New("job is not in a runnable state")

	// ErrQueueFull means the transcription queue cannot accept more work
	// right now. The job's state is left untouched.
	ErrQueueFull = errors.New("transcription queue is full")
)
