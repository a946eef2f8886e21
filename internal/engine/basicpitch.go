package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/snarg/score-engine/internal/notation"
)

// BasicPitchClient calls an external Basic Pitch inference server over HTTP.
// The server accepts a multipart audio upload and returns detected note
// events as JSON.
type BasicPitchClient struct {
	url     string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewBasicPitchClient creates a pitch-detection HTTP client.
func NewBasicPitchClient(url, model string, timeout time.Duration) *BasicPitchClient {
	return &BasicPitchClient{
		url:     url,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *BasicPitchClient) Name() string  { return "basic-pitch" }
func (c *BasicPitchClient) Model() string { return c.model }

type detectedNote struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Pitch     int     `json:"pitch"`
	Velocity  int     `json:"velocity"`
}

type detectResponse struct {
	Notes    []detectedNote `json:"notes"`
	Duration float64        `json:"duration"`
}

type detectError struct {
	Error string `json:"error"`
}

// Detect sends the audio file to the inference server and returns the note
// events it found, sorted as received.
func (c *BasicPitchClient) Detect(ctx context.Context, audioPath string) ([]notation.NoteEvent, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if c.model != "" {
		w.WriteField("model", c.model)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pitch-detection request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var de detectError
		if json.Unmarshal(body, &de) == nil && de.Error != "" {
			return nil, fmt.Errorf("pitch-detection server returned %d: %s", resp.StatusCode, de.Error)
		}
		return nil, fmt.Errorf("pitch-detection server returned %d", resp.StatusCode)
	}

	var dr detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	events := make([]notation.NoteEvent, 0, len(dr.Notes))
	for _, n := range dr.Notes {
		events = append(events, notation.NoteEvent{
			Onset:    n.StartTime,
			Offset:   n.EndTime,
			Pitch:    n.Pitch,
			Velocity: n.Velocity,
		})
	}
	return events, nil
}
