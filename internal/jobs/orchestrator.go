package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/score-engine/internal/metrics"
	"github.com/snarg/score-engine/internal/store"
)

// Engine turns a stored input file into persisted MIDI and MusicXML
// artifacts. It is stateless between calls and substitutable by a stub in
// tests.
type Engine interface {
	Transcribe(ctx context.Context, jobID, inputPath string) (Result, error)
}

// OrchestratorOptions configures the job orchestrator.
type OrchestratorOptions struct {
	Registry   Registry
	Store      *store.ArtifactStore
	Engine     Engine
	Workers    int
	QueueSize  int
	RunTimeout time.Duration
	Log        zerolog.Logger
}

// Orchestrator is the state-machine core. It is the sole caller of the
// Engine and the sole mutator of the Registry, and it alone couples artifact
// lifetime to job state: files exist on disk if and only if a live job
// references them.
type Orchestrator struct {
	reg    Registry
	store  *store.ArtifactStore
	engine Engine
	opts   OrchestratorOptions
	log    zerolog.Logger

	pool *workerPool
}

// NewOrchestrator creates an orchestrator. Call Start to launch the workers
// that drain the run queue, and Stop to wait for them.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		reg:    opts.Registry,
		store:  opts.Store,
		engine: opts.Engine,
		opts:   opts,
		log:    opts.Log.With().Str("component", "orchestrator").Logger(),
	}
	o.pool = newWorkerPool(o, opts.Workers, opts.QueueSize)
	return o
}

// Start launches the transcription workers.
func (o *Orchestrator) Start() { o.pool.start() }

// Stop drains the queue and waits for in-flight runs to settle.
func (o *Orchestrator) Stop() { o.pool.stop() }

// Stats reports the current state of the run queue.
func (o *Orchestrator) Stats() QueueStats { return o.pool.stats() }

// PendingRuns reports how many jobs are queued for transcription.
func (o *Orchestrator) PendingRuns() int { return o.pool.stats().Pending }

// JobCountsByStatus counts live job records per status, for scrape-time gauges.
func (o *Orchestrator) JobCountsByStatus() map[string]int {
	counts := make(map[string]int)
	for _, j := range o.reg.List() {
		counts[string(j.Status)]++
	}
	return counts
}

// Submit validates the upload's extension, persists the audio, and registers
// a new job in the Uploaded state. Validation happens before any state is
// created, so a rejected upload leaves no trace.
func (o *Orchestrator) Submit(filename string, data []byte) (Job, error) {
	id := uuid.NewString()
	path, err := o.store.SaveInput(id, filepath.Ext(filename), data)
	if err != nil {
		return Job{}, err
	}

	job, err := o.reg.Create(id, filepath.Base(filename), path)
	if err != nil {
		o.store.Remove(path)
		return Job{}, fmt.Errorf("register job: %w", err)
	}

	metrics.JobsSubmittedTotal.Inc()
	o.log.Info().Str("job_id", id).Str("filename", job.Filename).Msg("job submitted")
	return job, nil
}

// Run claims the job for processing and enqueues it for a worker. The claim
// is an atomic compare-and-set on status: only Uploaded or Failed jobs may
// enter Processing, and a concurrent Run on a Processing job fails fast with
// ErrAlreadyRunning instead of double-invoking the engine. Run returns the
// Processing snapshot promptly; completion is observed via Status.
func (o *Orchestrator) Run(id string) (Job, error) {
	var prev Status
	job, err := o.reg.Update(id, func(j *Job) error {
		switch {
		case j.Status == StatusProcessing:
			return ErrAlreadyRunning
		case !j.Runnable():
			return ErrInvalidState
		}
		prev = j.Status
		j.Status = StatusProcessing
		j.Error = ""
		return nil
	})
	if err != nil {
		return Job{}, err
	}

	if !o.pool.enqueue(id) {
		// Give the claim back so the job stays runnable.
		reverted, revertErr := o.reg.Update(id, func(j *Job) error {
			j.Status = prev
			return nil
		})
		if revertErr != nil {
			o.log.Error().Err(revertErr).Str("job_id", id).Msg("failed to revert claim after full queue")
		} else {
			job = reverted
		}
		return job, ErrQueueFull
	}

	o.log.Info().Str("job_id", id).Msg("job enqueued for transcription")
	return job, nil
}

// Status returns a read-only snapshot of the job.
func (o *Orchestrator) Status(id string) (Job, error) {
	return o.reg.Get(id)
}

// List returns snapshots of all live jobs, newest first.
func (o *Orchestrator) List() []Job {
	return o.reg.List()
}

// FetchArtifact returns the on-disk path and content type of a generated
// artifact. Artifacts are only addressable on Completed jobs.
func (o *Orchestrator) FetchArtifact(id string, kind store.Kind) (string, error) {
	job, err := o.reg.Get(id)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted {
		return "", fmt.Errorf("%w: no %s artifact for job in state %s", ErrNotFound, kind, job.Status)
	}

	var path string
	switch kind {
	case store.KindMIDI:
		path = job.MIDIPath
	case store.KindMusicXML:
		path = job.MusicXMLPath
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s for job %s", ErrNotFound, kind, id)
	}
	if !o.store.Exists(path) {
		return "", fmt.Errorf("artifact missing on disk: %s", path)
	}
	return path, nil
}

// Delete removes the job record and every file it references. Deleting an
// unknown id returns ErrNotFound with no side effect; deletion is terminal.
func (o *Orchestrator) Delete(id string) error {
	job, err := o.reg.Delete(id)
	if err != nil {
		return err
	}

	o.store.Remove(job.InputPath)
	o.store.Remove(job.MIDIPath)
	o.store.Remove(job.MusicXMLPath)

	metrics.JobsDeletedTotal.Inc()
	o.log.Info().Str("job_id", id).Str("status", string(job.Status)).Msg("job deleted")
	return nil
}

// process runs the engine for a claimed job and settles it as Completed or
// Failed. Called from worker goroutines only.
func (o *Orchestrator) process(id string) error {
	job, err := o.reg.Get(id)
	if err != nil {
		// Deleted between claim and pickup; nothing to do.
		return nil
	}

	ctx := context.Background()
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	res, engineErr := o.engine.Transcribe(ctx, id, job.InputPath)
	elapsed := time.Since(start)

	if engineErr != nil {
		o.discardOutputs(id)
		metrics.TranscriptionsTotal.WithLabelValues("failed").Inc()
		_, err := o.reg.Update(id, func(j *Job) error {
			j.Status = StatusFailed
			j.Error = engineErr.Error()
			j.MIDIPath = ""
			j.MusicXMLPath = ""
			return nil
		})
		if err != nil {
			// Job was deleted mid-run; outputs are already gone.
			return engineErr
		}
		o.log.Warn().Err(engineErr).Str("job_id", id).Dur("elapsed", elapsed).Msg("transcription failed")
		return engineErr
	}

	metrics.TranscriptionsTotal.WithLabelValues("completed").Inc()
	metrics.TranscriptionDuration.Observe(elapsed.Seconds())
	metrics.NotesDetected.Observe(float64(res.NotesDetected))

	_, err = o.reg.Update(id, func(j *Job) error {
		j.Status = StatusCompleted
		j.MIDIPath = res.MIDIPath
		j.MusicXMLPath = res.MusicXMLPath
		j.NotesDetected = res.NotesDetected
		j.Error = ""
		return nil
	})
	if err != nil {
		// Deleted mid-run: the record is gone, so its files must go too.
		o.store.Remove(res.MIDIPath)
		o.store.Remove(res.MusicXMLPath)
		return nil
	}

	o.log.Info().
		Str("job_id", id).
		Int("notes", res.NotesDetected).
		Dur("elapsed", elapsed).
		Msg("transcription complete")
	return nil
}

// discardOutputs removes any partially produced outputs for a job.
func (o *Orchestrator) discardOutputs(id string) {
	for _, kind := range []store.Kind{store.KindMIDI, store.KindMusicXML} {
		if path, err := o.store.Resolve(id, kind); err == nil {
			o.store.Remove(path)
		}
	}
}
