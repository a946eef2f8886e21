package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ErrUnsupportedFormat is returned when an upload's extension is not in the
// allowed set.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrNotFound is returned when no artifact of the requested kind exists.
var ErrNotFound = errors.New("artifact not found")

// Kind identifies one of the files owned by a job.
type Kind string

const (
	KindInput    Kind = "input"
	KindMIDI     Kind = "midi"
	KindMusicXML Kind = "musicxml"
)

// ParseKind validates a downloadable artifact kind from an external request.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindMIDI, KindMusicXML:
		return Kind(s), true
	}
	return "", false
}

// ContentType returns the MIME type served for the artifact kind.
func (k Kind) ContentType() string {
	switch k {
	case KindMIDI:
		return "audio/midi"
	case KindMusicXML:
		return "application/vnd.recordare.musicxml+xml"
	}
	return "application/octet-stream"
}

func (k Kind) ext() string {
	switch k {
	case KindMIDI:
		return ".mid"
	case KindMusicXML:
		return ".musicxml"
	}
	return ""
}

var allowedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".flac": true,
	".m4a":  true,
}

// AllowedExtensions lists the accepted upload extensions, sorted, without dots.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(out)
	return out
}

// ArtifactStore owns the on-disk layout for job files: one uploaded input per
// job under uploadDir, and up to two generated outputs per job under
// outputDir. It holds no file contents in memory.
type ArtifactStore struct {
	uploadDir string
	outputDir string
	log       zerolog.Logger
}

// New creates the store and its directories.
func New(uploadDir, outputDir string, log zerolog.Logger) (*ArtifactStore, error) {
	for _, dir := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return &ArtifactStore{
		uploadDir: uploadDir,
		outputDir: outputDir,
		log:       log.With().Str("component", "store").Logger(),
	}, nil
}

// SaveInput validates the declared extension and writes the uploaded audio
// under a job-unique name. The write is atomic: a partial file is never
// visible under the final name.
func (s *ArtifactStore) SaveInput(jobID, declaredExt string, data []byte) (string, error) {
	ext := strings.ToLower(declaredExt)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFormat, declaredExt, strings.Join(AllowedExtensions(), ", "))
	}
	path := filepath.Join(s.uploadDir, jobID+ext)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveArtifact writes a generated output (MIDI or MusicXML) for a job.
func (s *ArtifactStore) SaveArtifact(jobID string, kind Kind, data []byte) (string, error) {
	if kind != KindMIDI && kind != KindMusicXML {
		return "", fmt.Errorf("not a generated artifact kind: %q", kind)
	}
	path := filepath.Join(s.outputDir, jobID+kind.ext())
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Resolve returns the on-disk path for a job's generated artifact, or
// ErrNotFound if it does not exist. Input paths carry the upload's extension
// and are resolved from the job record instead.
func (s *ArtifactStore) Resolve(jobID string, kind Kind) (string, error) {
	if kind != KindMIDI && kind != KindMusicXML {
		return "", fmt.Errorf("%w: kind %q", ErrNotFound, kind)
	}
	path := filepath.Join(s.outputDir, jobID+kind.ext())
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s for job %s", ErrNotFound, kind, jobID)
	}
	return path, nil
}

// Remove deletes a file best-effort. A missing file is not an error, so
// removal is idempotent. Empty paths are ignored.
func (s *ArtifactStore) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", path).Msg("failed to remove artifact")
	}
}

// Exists reports whether the file at path is present on disk.
func (s *ArtifactStore) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// writeAtomic writes data via a temp file and rename in the target directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
