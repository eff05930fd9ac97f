package domain

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

// Pitch is a MIDI key number. Octaves follow scientific pitch notation, so
// middle C (key 60) is C4 and key 0 is C-1.
type Pitch uint8

// MaxPitch is the highest MIDI key.
const MaxPitch Pitch = 127

var pitchClasses = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// ParsePitch parses names such as "C4", "Db3", "F#5" or "C-1".
func ParsePitch(s string) (Pitch, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return 0, fmt.Errorf("empty pitch")
	}
	class, ok := pitchClasses[strings.ToUpper(name[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid pitch %q", s)
	}
	rest := name[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		class++
		rest = rest[1:]
	case strings.HasPrefix(rest, "b"):
		class--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid pitch octave %q", s)
	}
	key := (octave+1)*12 + class
	if key < 0 || key > int(MaxPitch) {
		return 0, fmt.Errorf("pitch %q out of MIDI range", s)
	}
	return Pitch(key), nil
}

// MustPitch is ParsePitch for constants; it panics on invalid input.
func MustPitch(s string) Pitch {
	p, err := ParsePitch(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Key returns the MIDI key number.
func (p Pitch) Key() uint8 { return uint8(p) }

// Class returns the pitch class name using flats, e.g. "Db".
func (p Pitch) Class() string { return midi.Note(p).Name() }

// Octave returns the scientific octave number.
func (p Pitch) Octave() int { return int(p)/12 - 1 }

func (p Pitch) String() string {
	return p.Class() + strconv.Itoa(p.Octave())
}
