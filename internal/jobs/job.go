package jobs

import "time"

// Status is a job's position in the transcription lifecycle. Transitions only
// move forward: Uploaded → Processing → Completed or Failed, with Failed →
// Processing permitted for retries. Deletion removes the record entirely; a
// deleted job is indistinguishable from one that never existed.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one submitted audio file and its transcription lifecycle record.
// The registry hands out value copies, so a Job read by a caller is always a
// consistent snapshot of a fully published transition.
type Job struct {
	ID       string
	Status   Status
	Filename string // original upload filename, for display only

	InputPath    string // stored original audio, owned by this job
	MIDIPath     string // set iff Status == StatusCompleted
	MusicXMLPath string // set iff Status == StatusCompleted

	Error         string // set iff Status == StatusFailed
	NotesDetected int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Runnable reports whether a run may start from the job's current state.
func (j Job) Runnable() bool {
	return j.Status == StatusUploaded || j.Status == StatusFailed
}

// Result is what the transcription engine produces for a successful run.
type Result struct {
	MIDIPath      string
	MusicXMLPath  string
	NotesDetected int
}
