package notation

import (
	"encoding/xml"
	"fmt"
	"math"
	"sort"
)

// MusicXML quantization grid: 4 divisions per quarter note (16th resolution)
// in 4/4 at the same tempo the MIDI encoder uses.
const (
	xmlDivisions  = 4
	xmlBeats      = 4
	xmlBeatType   = 4
	measureUnits  = xmlDivisions * xmlBeats
	secondsPerDiv = 60.0 / midiTempoBPM / float64(xmlDivisions)
)

const musicXMLDoctype = `<!DOCTYPE score-partwise PUBLIC "-//Recordare//DTD MusicXML 4.0 Partwise//EN" "http://www.musicxml.org/dtds/partwise.dtd">` + "\n"

type scorePartwise struct {
	XMLName  xml.Name   `xml:"score-partwise"`
	Version  string     `xml:"version,attr"`
	Work     *xmlWork   `xml:"work,omitempty"`
	PartList xmlPartList `xml:"part-list"`
	Parts    []xmlPart  `xml:"part"`
}

type xmlWork struct {
	Title string `xml:"work-title"`
}

type xmlPartList struct {
	ScoreParts []xmlScorePart `xml:"score-part"`
}

type xmlScorePart struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"part-name"`
}

type xmlPart struct {
	ID       string       `xml:"id,attr"`
	Measures []xmlMeasure `xml:"measure"`
}

type xmlMeasure struct {
	Number     int            `xml:"number,attr"`
	Attributes *xmlAttributes `xml:"attributes,omitempty"`
	Notes      []xmlNote      `xml:"note"`
}

type xmlAttributes struct {
	Divisions int     `xml:"divisions"`
	Key       xmlKey  `xml:"key"`
	Time      xmlTime `xml:"time"`
	Clef      xmlClef `xml:"clef"`
}

type xmlKey struct {
	Fifths int `xml:"fifths"`
}

type xmlTime struct {
	Beats    int `xml:"beats"`
	BeatType int `xml:"beat-type"`
}

type xmlClef struct {
	Sign string `xml:"sign"`
	Line int    `xml:"line"`
}

// Field order matters: MusicXML requires chord, rest, pitch, duration, tie,
// type, notations in that sequence inside <note>.
type xmlNote struct {
	Chord     *struct{}     `xml:"chord,omitempty"`
	Rest      *struct{}     `xml:"rest,omitempty"`
	Pitch     *xmlPitch     `xml:"pitch,omitempty"`
	Duration  int           `xml:"duration"`
	Ties      []xmlTie      `xml:"tie,omitempty"`
	Type      string        `xml:"type,omitempty"`
	Notations *xmlNotations `xml:"notations,omitempty"`
}

type xmlPitch struct {
	Step   string `xml:"step"`
	Alter  int    `xml:"alter,omitempty"`
	Octave int    `xml:"octave"`
}

type xmlTie struct {
	Type string `xml:"type,attr"`
}

type xmlNotations struct {
	Tied []xmlTied `xml:"tied"`
}

type xmlTied struct {
	Type string `xml:"type,attr"`
}

// EncodeMusicXML renders note events as a single-part score-partwise document.
// Events are quantized to a 16th-note grid; simultaneous onsets become chords
// and notes crossing a barline are split and tied.
func EncodeMusicXML(events []NoteEvent) ([]byte, error) {
	b := newScoreBuilder()

	type qNote struct {
		start, dur, pitch int
	}
	qnotes := make([]qNote, 0, len(events))
	for _, e := range events {
		if e.Offset <= e.Onset {
			continue
		}
		start := int(math.Round(e.Onset / secondsPerDiv))
		dur := int(math.Round(e.Duration() / secondsPerDiv))
		if dur < 1 {
			dur = 1
		}
		qnotes = append(qnotes, qNote{start: start, dur: dur, pitch: int(clampPitch(e.Pitch))})
	}
	sort.Slice(qnotes, func(i, j int) bool {
		if qnotes[i].start != qnotes[j].start {
			return qnotes[i].start < qnotes[j].start
		}
		return qnotes[i].pitch < qnotes[j].pitch
	})

	lastStart := -1
	var lastChunks []noteChunk
	for _, qn := range qnotes {
		if qn.start == lastStart && lastChunks != nil {
			b.addChord(qn.pitch, lastChunks)
			continue
		}
		start := qn.start
		if start < b.pos {
			// Overlapping voice with a later onset than the chord boundary:
			// flatten onto the grid cursor.
			start = b.pos
		}
		if start > b.pos {
			b.addRest(start - b.pos)
		}
		lastChunks = b.addNote(qn.pitch, qn.dur)
		lastStart = qn.start
	}
	b.padFinalMeasure()

	score := scorePartwise{
		Version: "4.0",
		Work:    &xmlWork{Title: "Transcription"},
		PartList: xmlPartList{ScoreParts: []xmlScorePart{
			{ID: "P1", Name: "Transcribed Audio"},
		}},
		Parts: []xmlPart{{ID: "P1", Measures: b.measures}},
	}

	body, err := xml.MarshalIndent(score, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal musicxml: %w", err)
	}

	out := make([]byte, 0, len(xml.Header)+len(musicXMLDoctype)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, musicXMLDoctype...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// noteChunk records where a (possibly split) note landed so chord notes can
// mirror the same rhythm.
type noteChunk struct {
	measure  int
	dur      int
	tieStart bool
	tieStop  bool
}

type scoreBuilder struct {
	measures []xmlMeasure
	pos      int // absolute position in divisions
}

func newScoreBuilder() *scoreBuilder {
	return &scoreBuilder{}
}

func (b *scoreBuilder) measureAt(i int) *xmlMeasure {
	for len(b.measures) <= i {
		m := xmlMeasure{Number: len(b.measures) + 1}
		if len(b.measures) == 0 {
			m.Attributes = &xmlAttributes{
				Divisions: xmlDivisions,
				Key:       xmlKey{Fifths: 0},
				Time:      xmlTime{Beats: xmlBeats, BeatType: xmlBeatType},
				Clef:      xmlClef{Sign: "G", Line: 2},
			}
		}
		b.measures = append(b.measures, m)
	}
	return &b.measures[i]
}

func (b *scoreBuilder) addRest(units int) {
	for units > 0 {
		i := b.pos / measureUnits
		space := measureUnits - b.pos%measureUnits
		n := min(space, units)
		m := b.measureAt(i)
		m.Notes = append(m.Notes, xmlNote{
			Rest:     &struct{}{},
			Duration: n,
			Type:     noteTypeName(n),
		})
		b.pos += n
		units -= n
	}
}

func (b *scoreBuilder) addNote(pitch, units int) []noteChunk {
	var chunks []noteChunk
	first := true
	for units > 0 {
		i := b.pos / measureUnits
		space := measureUnits - b.pos%measureUnits
		n := min(space, units)
		c := noteChunk{measure: i, dur: n, tieStart: units > n, tieStop: !first}
		m := b.measureAt(i)
		m.Notes = append(m.Notes, pitchedNote(pitch, c, false))
		chunks = append(chunks, c)
		b.pos += n
		units -= n
		first = false
	}
	return chunks
}

func (b *scoreBuilder) addChord(pitch int, chunks []noteChunk) {
	for _, c := range chunks {
		m := b.measureAt(c.measure)
		m.Notes = append(m.Notes, pitchedNote(pitch, c, true))
	}
}

func (b *scoreBuilder) padFinalMeasure() {
	if fill := b.pos % measureUnits; fill != 0 {
		b.addRest(measureUnits - fill)
	}
	if len(b.measures) == 0 {
		b.addRest(measureUnits)
	}
}

func pitchedNote(pitch int, c noteChunk, chord bool) xmlNote {
	n := xmlNote{
		Pitch:    midiPitch(pitch),
		Duration: c.dur,
		Type:     noteTypeName(c.dur),
	}
	if chord {
		n.Chord = &struct{}{}
	}
	if c.tieStop {
		n.Ties = append(n.Ties, xmlTie{Type: "stop"})
	}
	if c.tieStart {
		n.Ties = append(n.Ties, xmlTie{Type: "start"})
	}
	if len(n.Ties) > 0 {
		nts := &xmlNotations{}
		for _, t := range n.Ties {
			nts.Tied = append(nts.Tied, xmlTied{Type: t.Type})
		}
		n.Notations = nts
	}
	return n
}

var pitchSteps = [12]struct {
	step  string
	alter int
}{
	{"C", 0}, {"C", 1}, {"D", 0}, {"D", 1}, {"E", 0}, {"F", 0},
	{"F", 1}, {"G", 0}, {"G", 1}, {"A", 0}, {"A", 1}, {"B", 0},
}

func midiPitch(p int) *xmlPitch {
	s := pitchSteps[p%12]
	return &xmlPitch{Step: s.step, Alter: s.alter, Octave: p/12 - 1}
}

// noteTypeName maps an exact duration in divisions to a notated type.
// Inexact durations omit the type; renderers infer it from duration.
func noteTypeName(units int) string {
	switch units {
	case 16:
		return "whole"
	case 8:
		return "half"
	case 4:
		return "quarter"
	case 2:
		return "eighth"
	case 1:
		return "16th"
	}
	return ""
}
