package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/score-engine/internal/jobs"
	"github.com/snarg/score-engine/internal/store"
)

// stubEngine produces fixed artifacts through the real store, or fails.
type stubEngine struct {
	store *store.ArtifactStore
	midi  []byte
	xml   []byte
	err   error
}

func (e *stubEngine) Transcribe(_ context.Context, jobID, _ string) (jobs.Result, error) {
	if e.err != nil {
		return jobs.Result{}, e.err
	}
	midiPath, err := e.store.SaveArtifact(jobID, store.KindMIDI, e.midi)
	if err != nil {
		return jobs.Result{}, err
	}
	xmlPath, err := e.store.SaveArtifact(jobID, store.KindMusicXML, e.xml)
	if err != nil {
		return jobs.Result{}, err
	}
	return jobs.Result{MIDIPath: midiPath, MusicXMLPath: xmlPath, NotesDetected: 3}, nil
}

type testAPI struct {
	router http.Handler
	engine *stubEngine
}

func newTestAPI(t *testing.T, maxUploadBytes int64) *testAPI {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(dir+"/uploads", dir+"/output", zerolog.Nop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	eng := &stubEngine{store: st, midi: []byte("MThd-stub"), xml: []byte("<score-partwise/>")}
	orch := jobs.NewOrchestrator(jobs.OrchestratorOptions{
		Registry:  jobs.NewMemoryRegistry(),
		Store:     st,
		Engine:    eng,
		Workers:   2,
		QueueSize: 8,
		Log:       zerolog.Nop(),
	})
	orch.Start()
	t.Cleanup(orch.Stop)

	h := NewJobsHandler(orch, maxUploadBytes, zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return &testAPI{router: r, engine: eng}
}

func (a *testAPI) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(content)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) jobResponse {
	t.Helper()
	var j jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &j); err != nil {
		t.Fatalf("decode job response: %v (body %s)", err, rec.Body.String())
	}
	return j
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error response: %v (body %s)", err, rec.Body.String())
	}
	return e
}

func (a *testAPI) waitForStatus(t *testing.T, id, want string) jobResponse {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec := a.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil))
		if rec.Code == http.StatusOK {
			j := decodeJob(t, rec)
			if j.Status == want {
				return j
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q", id, want)
	return jobResponse{}
}

func TestUploadTranscribeDownload(t *testing.T) {
	a := newTestAPI(t, 10<<20)

	rec := a.do(t, multipartUpload(t, "melody.wav", []byte("fake-wav")))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	job := decodeJob(t, rec)
	if job.Status != "uploaded" || job.ID == "" {
		t.Fatalf("uploaded job = %+v", job)
	}
	if job.Filename != "melody.wav" {
		t.Errorf("filename = %q", job.Filename)
	}
	if job.MIDIURL != "" {
		t.Error("artifact URLs should not be present before completion")
	}

	rec = a.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/transcribe", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("transcribe status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeJob(t, rec).Status; got != "processing" {
		t.Errorf("transcribe snapshot status = %q", got)
	}

	done := a.waitForStatus(t, job.ID, "completed")
	if done.NotesDetected != 3 {
		t.Errorf("notes_detected = %d", done.NotesDetected)
	}
	wantMIDIURL := fmt.Sprintf("/api/v1/jobs/%s/artifacts/midi", job.ID)
	if done.MIDIURL != wantMIDIURL {
		t.Errorf("midi_url = %q, want %q", done.MIDIURL, wantMIDIURL)
	}

	rec = a.do(t, httptest.NewRequest(http.MethodGet, done.MIDIURL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("midi download status = %d", rec.Code)
	}
	if got, _ := io.ReadAll(rec.Body); !bytes.Equal(got, a.engine.midi) {
		t.Errorf("midi bytes = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/midi" {
		t.Errorf("midi content type = %q", ct)
	}

	rec = a.do(t, httptest.NewRequest(http.MethodGet, done.MusicXMLURL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("musicxml download status = %d", rec.Code)
	}
	if got, _ := io.ReadAll(rec.Body); !bytes.Equal(got, a.engine.xml) {
		t.Errorf("musicxml bytes = %q", got)
	}
}

func TestUpload_UnsupportedFormat(t *testing.T) {
	a := newTestAPI(t, 10<<20)

	rec := a.do(t, multipartUpload(t, "notes.txt", []byte("not audio")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrUnsupportedFormat {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	a := newTestAPI(t, 10<<20)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("name", "melody")
	w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := a.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrInvalidBody {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	a := newTestAPI(t, 1024)

	rec := a.do(t, multipartUpload(t, "big.wav", bytes.Repeat([]byte("a"), 4096)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if e := decodeError(t, rec); e.Code != ErrFileTooLarge {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestTranscribe_FailureSurfacesOnJob(t *testing.T) {
	a := newTestAPI(t, 10<<20)
	a.engine.err = errors.New("model: inference server down")

	job := decodeJob(t, a.do(t, multipartUpload(t, "m.wav", []byte("x"))))
	rec := a.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/transcribe", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("transcribe status = %d", rec.Code)
	}

	failed := a.waitForStatus(t, job.ID, "failed")
	if failed.Error == "" {
		t.Error("failed job carries no error detail")
	}

	rec = a.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/artifacts/midi", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("artifact on failed job: status = %d", rec.Code)
	}
}

func TestTranscribe_UnknownJob(t *testing.T) {
	a := newTestAPI(t, 10<<20)
	rec := a.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/no-such-id/transcribe", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTranscribe_CompletedConflicts(t *testing.T) {
	a := newTestAPI(t, 10<<20)

	job := decodeJob(t, a.do(t, multipartUpload(t, "m.wav", []byte("x"))))
	a.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/transcribe", nil))
	a.waitForStatus(t, job.ID, "completed")

	rec := a.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/transcribe", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrInvalidState {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestArtifact_BadKind(t *testing.T) {
	a := newTestAPI(t, 10<<20)

	job := decodeJob(t, a.do(t, multipartUpload(t, "m.wav", []byte("x"))))
	rec := a.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/artifacts/pdf", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if e := decodeError(t, rec); e.Code != ErrBadRequest {
		t.Errorf("error code = %q", e.Code)
	}
}

func TestDelete_JobAndArtifactsGone(t *testing.T) {
	a := newTestAPI(t, 10<<20)

	job := decodeJob(t, a.do(t, multipartUpload(t, "m.wav", []byte("x"))))
	a.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/transcribe", nil))
	done := a.waitForStatus(t, job.ID, "completed")

	rec := a.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = a.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("job visible after delete: status = %d", rec.Code)
	}
	rec = a.do(t, httptest.NewRequest(http.MethodGet, done.MIDIURL, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("artifact served after delete: status = %d", rec.Code)
	}

	rec = a.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rec.Code)
	}
}

func TestList(t *testing.T) {
	a := newTestAPI(t, 10<<20)

	a.do(t, multipartUpload(t, "one.wav", []byte("1")))
	a.do(t, multipartUpload(t, "two.flac", []byte("2")))

	rec := a.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Jobs  []jobResponse `json:"jobs"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if out.Total != 2 || len(out.Jobs) != 2 {
		t.Errorf("total = %d, jobs = %d", out.Total, len(out.Jobs))
	}
}
