package jobs

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/score-engine/internal/metrics"
)

// Sweeper deletes jobs older than the retention window, applying the same
// Delete contract as an explicit client request. Jobs that are currently
// Processing are left alone and picked up on a later pass.
type Sweeper struct {
	orch      *Orchestrator
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewSweeper creates a retention sweeper. A retention of zero disables it.
func NewSweeper(orch *Orchestrator, retention, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		orch:      orch,
		retention: retention,
		interval:  interval,
		log:       log.With().Str("component", "sweeper").Logger(),
		stop:      make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	if s.retention <= 0 {
		s.log.Info().Msg("job retention disabled")
		return
	}
	go s.loop()
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Sweeper) loop() {
	// Run once on startup to clear any backlog from downtime.
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.retention)
	var swept int
	for _, job := range s.orch.List() {
		if job.Status == StatusProcessing {
			continue
		}
		if job.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.orch.Delete(job.ID); err != nil {
			continue
		}
		swept++
		metrics.JobsSweptTotal.Inc()
	}
	if swept > 0 {
		s.log.Info().Int("swept", swept).Dur("retention", s.retention).Msg("retention sweep complete")
	}
}
