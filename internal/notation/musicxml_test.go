package notation

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
)

func decodeScore(t *testing.T, data []byte) scorePartwise {
	t.Helper()
	var s scorePartwise
	// Strip the prolog so Unmarshal doesn't trip over the DOCTYPE.
	body := data
	if i := bytes.Index(data, []byte("<score-partwise")); i >= 0 {
		body = data[i:]
	}
	if err := xml.Unmarshal(body, &s); err != nil {
		t.Fatalf("unmarshal musicxml: %v", err)
	}
	return s
}

func TestEncodeMusicXML_Structure(t *testing.T) {
	data, err := EncodeMusicXML([]NoteEvent{
		{Onset: 0, Offset: 0.5, Pitch: 60, Velocity: 90},
	})
	if err != nil {
		t.Fatalf("EncodeMusicXML: %v", err)
	}
	if !strings.HasPrefix(string(data), xml.Header) {
		t.Error("missing XML declaration")
	}
	if !strings.Contains(string(data), "DOCTYPE score-partwise") {
		t.Error("missing DOCTYPE")
	}

	s := decodeScore(t, data)
	if s.Version != "4.0" {
		t.Errorf("version = %q", s.Version)
	}
	if len(s.PartList.ScoreParts) != 1 || s.PartList.ScoreParts[0].ID != "P1" {
		t.Fatalf("part-list = %+v", s.PartList)
	}
	if len(s.Parts) != 1 || s.Parts[0].ID != "P1" {
		t.Fatalf("parts = %+v", s.Parts)
	}

	m1 := s.Parts[0].Measures[0]
	if m1.Attributes == nil {
		t.Fatal("first measure has no attributes")
	}
	if m1.Attributes.Divisions != 4 {
		t.Errorf("divisions = %d", m1.Attributes.Divisions)
	}
	if m1.Attributes.Time.Beats != 4 || m1.Attributes.Time.BeatType != 4 {
		t.Errorf("time = %+v", m1.Attributes.Time)
	}
}

func TestEncodeMusicXML_MiddleC(t *testing.T) {
	// 0.5s at 120 BPM is a quarter note.
	data, err := EncodeMusicXML([]NoteEvent{
		{Onset: 0, Offset: 0.5, Pitch: 60, Velocity: 90},
	})
	if err != nil {
		t.Fatalf("EncodeMusicXML: %v", err)
	}
	s := decodeScore(t, data)

	notes := s.Parts[0].Measures[0].Notes
	if len(notes) == 0 {
		t.Fatal("no notes in first measure")
	}
	n := notes[0]
	if n.Pitch == nil {
		t.Fatal("first note is a rest")
	}
	if n.Pitch.Step != "C" || n.Pitch.Octave != 4 || n.Pitch.Alter != 0 {
		t.Errorf("pitch 60 rendered as %+v, want C4", *n.Pitch)
	}
	if n.Duration != 4 || n.Type != "quarter" {
		t.Errorf("0.5s note: duration=%d type=%q, want quarter (4)", n.Duration, n.Type)
	}
}

func TestEncodeMusicXML_SharpPitch(t *testing.T) {
	data, err := EncodeMusicXML([]NoteEvent{
		{Onset: 0, Offset: 0.5, Pitch: 61, Velocity: 90},
	})
	if err != nil {
		t.Fatalf("EncodeMusicXML: %v", err)
	}
	s := decodeScore(t, data)
	n := s.Parts[0].Measures[0].Notes[0]
	if n.Pitch == nil || n.Pitch.Step != "C" || n.Pitch.Alter != 1 || n.Pitch.Octave != 4 {
		t.Errorf("pitch 61 rendered as %+v, want C#4", n.Pitch)
	}
}

func TestEncodeMusicXML_LeadingRest(t *testing.T) {
	// One second of silence is two quarter rests' worth of grid.
	data, err := EncodeMusicXML([]NoteEvent{
		{Onset: 1.0, Offset: 1.5, Pitch: 60, Velocity: 90},
	})
	if err != nil {
		t.Fatalf("EncodeMusicXML: %v", err)
	}
	s := decodeScore(t, data)
	notes := s.Parts[0].Measures[0].Notes
	if len(notes) < 2 {
		t.Fatalf("expected rest then note, got %d notes", len(notes))
	}
	if notes[0].Rest == nil {
		t.Error("leading silence did not produce a rest")
	}
	var restUnits int
	for _, n := range notes {
		if n.Rest != nil {
			restUnits += n.Duration
		}
	}
	// 1.0s at 120 BPM and 16th grid is 8 divisions before the note, plus the
	// final-measure padding after it.
	if restUnits < 8 {
		t.Errorf("rest units before note = %d, want >= 8", restUnits)
	}
}

func TestEncodeMusicXML_TieAcrossBarline(t *testing.T) {
	// 2.5 seconds spans the 2-second barline, so the note splits and ties.
	data, err := EncodeMusicXML([]NoteEvent{
		{Onset: 0, Offset: 2.5, Pitch: 67, Velocity: 90},
	})
	if err != nil {
		t.Fatalf("EncodeMusicXML: %v", err)
	}
	s := decodeScore(t, data)
	measures := s.Parts[0].Measures
	if len(measures) < 2 {
		t.Fatalf("expected 2 measures, got %d", len(measures))
	}

	first := measures[0].Notes[0]
	if first.Duration != 16 {
		t.Errorf("first chunk duration = %d, want full measure (16)", first.Duration)
	}
	if len(first.Ties) != 1 || first.Ties[0].Type != "start" {
		t.Errorf("first chunk ties = %+v, want tie start", first.Ties)
	}

	second := measures[1].Notes[0]
	if second.Duration != 4 {
		t.Errorf("second chunk duration = %d, want 4", second.Duration)
	}
	if len(second.Ties) != 1 || second.Ties[0].Type != "stop" {
		t.Errorf("second chunk ties = %+v, want tie stop", second.Ties)
	}
	if second.Notations == nil || len(second.Notations.Tied) != 1 {
		t.Error("tied notation missing on second chunk")
	}
}

func TestEncodeMusicXML_Chord(t *testing.T) {
	data, err := EncodeMusicXML([]NoteEvent{
		{Onset: 0, Offset: 0.5, Pitch: 60, Velocity: 90},
		{Onset: 0, Offset: 0.5, Pitch: 64, Velocity: 90},
		{Onset: 0, Offset: 0.5, Pitch: 67, Velocity: 90},
	})
	if err != nil {
		t.Fatalf("EncodeMusicXML: %v", err)
	}
	s := decodeScore(t, data)
	notes := s.Parts[0].Measures[0].Notes

	var pitched, chordTagged int
	for _, n := range notes {
		if n.Pitch == nil {
			continue
		}
		pitched++
		if n.Chord != nil {
			chordTagged++
		}
	}
	if pitched != 3 {
		t.Fatalf("pitched notes = %d, want 3", pitched)
	}
	if chordTagged != 2 {
		t.Errorf("chord-tagged notes = %d, want 2", chordTagged)
	}
}

func TestEncodeMusicXML_Empty(t *testing.T) {
	data, err := EncodeMusicXML(nil)
	if err != nil {
		t.Fatalf("EncodeMusicXML(nil): %v", err)
	}
	s := decodeScore(t, data)
	if len(s.Parts[0].Measures) != 1 {
		t.Fatalf("empty score measures = %d, want 1", len(s.Parts[0].Measures))
	}
	notes := s.Parts[0].Measures[0].Notes
	if len(notes) != 1 || notes[0].Rest == nil || notes[0].Duration != 16 {
		t.Errorf("empty score should contain a single whole-measure rest, got %+v", notes)
	}
}

func TestEncodeMusicXML_FinalMeasurePadded(t *testing.T) {
	data, err := EncodeMusicXML([]NoteEvent{
		{Onset: 0, Offset: 0.5, Pitch: 60, Velocity: 90},
	})
	if err != nil {
		t.Fatalf("EncodeMusicXML: %v", err)
	}
	s := decodeScore(t, data)
	for _, m := range s.Parts[0].Measures {
		var units int
		for _, n := range m.Notes {
			if n.Chord == nil {
				units += n.Duration
			}
		}
		if units != 16 {
			t.Errorf("measure %d holds %d divisions, want 16", m.Number, units)
		}
	}
}
