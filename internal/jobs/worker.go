package jobs

import (
	"sync"
	"sync/atomic"
)

// QueueStats reports the current state of the transcription queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Workers   int   `json:"workers"`
}

// workerPool drains claimed job ids off a bounded queue. Transcription is
// long-running and CPU-bound, so it always happens off the request goroutine;
// per-job exclusivity is already guaranteed by the orchestrator's status CAS
// before a job id ever reaches the queue.
type workerPool struct {
	orch    *Orchestrator
	queue   chan string
	workers int
	wg      sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
}

func newWorkerPool(o *Orchestrator, workers, queueSize int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &workerPool{
		orch:    o,
		queue:   make(chan string, queueSize),
		workers: workers,
	}
}

func (p *workerPool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.orch.log.Info().Int("workers", p.workers).Int("queue_size", cap(p.queue)).Msg("transcription workers started")
}

func (p *workerPool) stop() {
	close(p.queue)
	p.wg.Wait()
	p.orch.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("transcription workers stopped")
}

// enqueue hands a claimed job id to the pool. Returns false if the queue is
// full; the caller is responsible for releasing the claim.
func (p *workerPool) enqueue(id string) bool {
	select {
	case p.queue <- id:
		return true
	default:
		return false
	}
}

func (p *workerPool) stats() QueueStats {
	return QueueStats{
		Pending:   len(p.queue),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Workers:   p.workers,
	}
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()
	log := p.orch.log.With().Int("worker", id).Logger()

	for jobID := range p.queue {
		if err := p.orch.process(jobID); err != nil {
			p.failed.Add(1)
			log.Debug().Err(err).Str("job_id", jobID).Msg("run settled as failed")
		} else {
			p.completed.Add(1)
		}
	}
}
