// Package watch submits audio files dropped into a local directory, as a
// headless alternative to the HTTP upload endpoint.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/score-engine/internal/jobs"
)

// debounceDelay coalesces rapid Create+Write events while a file is still
// being copied into the drop directory.
const debounceDelay = 500 * time.Millisecond

var watchedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".flac": true,
	".m4a":  true,
}

// Watcher monitors a drop directory and submits every completed audio file as
// a new job, immediately queuing it for transcription. The source file is
// removed once the store owns a copy.
type Watcher struct {
	orch     *jobs.Orchestrator
	watchDir string
	log      zerolog.Logger

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	submitted atomic.Int64
	status    atomic.Value // string: "starting", "watching", "error", "stopped"
}

// New creates a drop-directory watcher.
func New(orch *jobs.Orchestrator, watchDir string, log zerolog.Logger) *Watcher {
	w := &Watcher{
		orch:           orch,
		watchDir:       watchDir,
		log:            log.With().Str("component", "watcher").Logger(),
		stop:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}
	w.status.Store("starting")
	return w
}

// Status returns the watcher's lifecycle state for health reporting.
func (w *Watcher) Status() string {
	if s, ok := w.status.Load().(string); ok {
		return s
	}
	return "unknown"
}

// Start begins watching. Files already present in the directory are submitted
// first so a backlog from downtime is not lost.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.watchDir, 0o755); err != nil {
		w.status.Store("error")
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.status.Store("error")
		return err
	}
	w.watcher = fsw
	if err := fsw.Add(w.watchDir); err != nil {
		fsw.Close()
		w.status.Store("error")
		return err
	}

	go w.backfill()
	go w.loop()

	w.status.Store("watching")
	w.log.Info().Str("watch_dir", w.watchDir).Msg("drop-directory watcher started")
	return nil
}

// Stop ends watching and cancels pending debounce timers.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.debounceMu.Lock()
		for path, t := range w.debounceTimers {
			t.Stop()
			delete(w.debounceTimers, path)
		}
		w.debounceMu.Unlock()
		w.status.Store("stopped")
	})
}

func (w *Watcher) backfill() {
	entries, err := os.ReadDir(w.watchDir)
	if err != nil {
		w.log.Warn().Err(err).Msg("backfill scan failed")
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.scheduleSubmit(filepath.Join(w.watchDir, e.Name()))
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.scheduleSubmit(ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// scheduleSubmit debounces per path, then submits once events settle.
func (w *Watcher) scheduleSubmit(path string) {
	if !watchedExtensions[strings.ToLower(filepath.Ext(path))] {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(debounceDelay)
		return
	}
	w.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()
		w.submit(path)
	})
}

func (w *Watcher) submit(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to read dropped file")
		return
	}

	job, err := w.orch.Submit(filepath.Base(path), data)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to submit dropped file")
		return
	}

	// The store owns a copy now; the drop file is no longer needed.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to remove dropped file")
	}

	if _, err := w.orch.Run(job.ID); err != nil {
		w.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to queue dropped file")
		return
	}

	w.submitted.Add(1)
	w.log.Info().Str("job_id", job.ID).Str("path", path).Msg("dropped file submitted")
}
