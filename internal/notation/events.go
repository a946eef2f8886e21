package notation

// NoteEvent is a detected pitch with timing, the intermediate representation
// between the pitch-detection model and the notation encoders.
type NoteEvent struct {
	Onset    float64 `json:"onset"`    // seconds from start of audio
	Offset   float64 `json:"offset"`   // seconds from start of audio
	Pitch    int     `json:"pitch"`    // MIDI note number (0-127)
	Velocity int     `json:"velocity"` // MIDI velocity (1-127)
}

// Duration returns the sounding length of the note in seconds.
func (e NoteEvent) Duration() float64 {
	d := e.Offset - e.Onset
	if d < 0 {
		return 0
	}
	return d
}

func clampPitch(p int) uint8 {
	if p < 0 {
		return 0
	}
	if p > 127 {
		return 127
	}
	return uint8(p)
}

func clampVelocity(v int) uint8 {
	if v < 1 {
		return 1
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}
