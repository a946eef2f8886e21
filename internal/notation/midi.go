package notation

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Encoding parameters. The pitch-detection model reports absolute times in
// seconds, so the tempo here only defines the seconds-to-ticks mapping.
const (
	midiTempoBPM   = 120.0
	ticksPerQuarter = 480
	midiChannel    = 0
)

// EncodeMIDI renders note events as a single-track Standard MIDI File.
// An empty event list yields a valid file with only meta events.
func EncodeMIDI(events []NoteEvent) ([]byte, error) {
	type point struct {
		at    float64
		off   bool
		pitch uint8
		vel   uint8
	}

	points := make([]point, 0, len(events)*2)
	for _, e := range events {
		if e.Offset <= e.Onset {
			continue
		}
		p := clampPitch(e.Pitch)
		points = append(points,
			point{at: e.Onset, pitch: p, vel: clampVelocity(e.Velocity)},
			point{at: e.Offset, off: true, pitch: p},
		)
	}
	// NoteOff sorts before NoteOn at the same instant so repeated pitches
	// don't cancel each other.
	sort.Slice(points, func(i, j int) bool {
		if points[i].at != points[j].at {
			return points[i].at < points[j].at
		}
		return points[i].off && !points[j].off
	})

	clock := smf.MetricTicks(ticksPerQuarter)
	s := smf.New()
	s.TimeFormat = clock

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("score-engine transcription"))
	tr.Add(0, smf.MetaTempo(midiTempoBPM))
	tr.Add(0, smf.MetaMeter(4, 4))

	prev := 0.0
	for _, p := range points {
		delta := clock.Ticks(midiTempoBPM, secondsToDuration(p.at-prev))
		if p.off {
			tr.Add(delta, midi.NoteOff(midiChannel, p.pitch))
		} else {
			tr.Add(delta, midi.NoteOn(midiChannel, p.pitch, p.vel))
		}
		prev = p.at
	}
	tr.Close(0)
	s.Add(tr)

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write smf: %w", err)
	}
	return buf.Bytes(), nil
}

func secondsToDuration(sec float64) time.Duration {
	if sec < 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}
