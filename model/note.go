package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidNote = errors.New("invalid note")

// semitone offsets of the natural letters from c
var letterOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// sharps-only names indexed by pitch class
var pitchClassNames = [12]string{"c", "c#", "d", "d#", "e", "f", "f#", "g", "g#", "a", "a#", "b"}

const (
	MinOctave = 0
	MaxOctave = 8
)

// Note is a pitch letter, an optional accidental and an octave, e.g. c4, d#5, gb3.
// The zero value is not a valid note; build one with ParseNote, NewNote or NoteFromMIDI.
type Note struct {
	letter     byte
	accidental byte
	octave     int
}

func ParseNote(s string) (Note, error) {
	var n Note
	if s == "" {
		return n, fmt.Errorf("%w: empty string", ErrInvalidNote)
	}

	pos := 0
	if _, ok := letterOffsets[s[pos]]; !ok {
		return n, fmt.Errorf("%w: %q has no letter a-g", ErrInvalidNote, s)
	}
	n.letter = s[pos]
	pos++

	if pos < len(s) && (s[pos] == '#' || s[pos] == 'b') {
		n.accidental = s[pos]
		pos++
	}

	if pos >= len(s) || s[pos] < '0' || s[pos] > '9' {
		return Note{}, fmt.Errorf("%w: %q has no octave", ErrInvalidNote, s)
	}
	n.octave = int(s[pos] - '0')
	pos++

	if pos != len(s) {
		return Note{}, fmt.Errorf("%w: trailing characters in %q", ErrInvalidNote, s)
	}
	if n.octave < MinOctave || n.octave > MaxOctave {
		return Note{}, fmt.Errorf("%w: octave %d out of range in %q", ErrInvalidNote, n.octave, s)
	}
	return n, nil
}

// NewNote builds a note from a name such as "c", "f#" or "bb" and an octave.
func NewNote(name string, octave int) (Note, error) {
	if octave < MinOctave || octave > MaxOctave {
		return Note{}, fmt.Errorf("%w: octave %d must be between %d and %d", ErrInvalidNote, octave, MinOctave, MaxOctave)
	}
	return ParseNote(fmt.Sprintf("%s%d", name, octave))
}

// MustParseNote is ParseNote for static tables and tests.
func MustParseNote(s string) Note {
	n, err := ParseNote(s)
	if err != nil {
		panic(err)
	}
	return n
}

// NoteFromMIDI converts a MIDI key number (60 = c4) into a sharps-only note.
func NoteFromMIDI(key uint8) (Note, error) {
	octave := int(key)/12 - 1
	name := pitchClassNames[int(key)%12]
	return NewNote(name, octave)
}

func (n Note) Name() string {
	if n.accidental == 0 {
		return string(n.letter)
	}
	return string([]byte{n.letter, n.accidental})
}

func (n Note) Octave() int {
	return n.octave
}

func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Name(), n.octave)
}

// PitchClass is the note's identity modulo octave, 0 (c) to 11 (b).
func (n Note) PitchClass() int {
	pc := letterOffsets[n.letter]
	switch n.accidental {
	case '#':
		pc++
	case 'b':
		pc--
	}
	return (pc + 12) % 12
}

// Semitone is the absolute pitch used by the inversion-aware matcher: pitch class + 12*octave.
func (n Note) Semitone() int {
	return n.PitchClass() + 12*n.octave
}

// MIDIKey is the key number that sounds this note; unlike PitchClass it lets
// cb4 fall to b3 (59) and b#3 rise to c4 (60).
func (n Note) MIDIKey() uint8 {
	key := letterOffsets[n.letter] + 12*(n.octave+1)
	switch n.accidental {
	case '#':
		key++
	case 'b':
		key--
	}
	return uint8(key)
}

// Transpose returns the same pitch name moved by the given number of octaves.
func (n Note) Transpose(octaves int) (Note, error) {
	return NewNote(n.Name(), n.octave+octaves)
}

type Notes []Note

// ParseNotes reads a space separated list such as "c4 e4 g4".
func ParseNotes(s string) (Notes, error) {
	var res Notes
	for _, field := range strings.Fields(s) {
		n, err := ParseNote(field)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, nil
}

func (ns Notes) String() string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = n.String()
	}
	return strings.Join(parts, " ")
}
