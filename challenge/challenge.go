// Package challenge draws the notes and chords a player is asked to play.
package challenge

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/jsphweid/smartpiano/model"
)

// seven-note scales keyed by "<scale>_<mode>"
var scales = map[string][]string{
	"c_maj": {"c", "d", "e", "f", "g", "a", "b"},
	"d_maj": {"d", "e", "f#", "g", "a", "b", "c#"},
	"e_maj": {"e", "f#", "g#", "a", "b", "c#", "d#"},
	"f_maj": {"f", "g", "a", "a#", "c", "d", "e"},
	"g_maj": {"g", "a", "b", "c", "d", "e", "f#"},
	"a_maj": {"a", "b", "c#", "d", "e", "f#", "g#"},
	"b_maj": {"b", "c#", "d#", "e", "f#", "g#", "a#"},

	"c_min": {"c", "d", "d#", "f", "g", "g#", "a#"},
	"d_min": {"d", "e", "f", "g", "a", "a#", "c"},
	"e_min": {"e", "f#", "g", "a", "b", "c", "d"},
	"f_min": {"f", "g", "g#", "a#", "c", "c#", "d#"},
	"g_min": {"g", "a", "a#", "c", "d", "d#", "f"},
	"a_min": {"a", "b", "c", "d", "e", "f", "g"},
	"b_min": {"b", "c#", "d", "e", "f#", "g", "a"},
}

const fallbackScale = "c_maj"

// chords are built on I, IV and V only
var chordDegrees = []int{1, 4, 5}

const (
	noteMinOctave  = 3
	noteMaxOctave  = 5
	chordMinOctave = 3
	chordMaxOctave = 4
	maxInversion   = 2
)

type Generator struct {
	rng    *rand.Rand
	logger *slog.Logger
}

// NewGenerator draws from rng; a nil rng gets one seeded from the clock.
func NewGenerator(rng *rand.Rand, logger *slog.Logger) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{rng: rng, logger: logger}
}

// KnownScale reports whether scale and mode name one of the tables.
func KnownScale(scale, mode string) bool {
	_, ok := scales[scaleKey(scale, mode)]
	return ok
}

func scaleKey(scale, mode string) string {
	return strings.ToLower(scale) + "_" + strings.ToLower(mode)
}

// Scale returns the note names of the scale, or C major when it is unknown.
func (g *Generator) Scale(scale, mode string) []string {
	if notes, ok := scales[scaleKey(scale, mode)]; ok {
		return notes
	}
	g.logger.Warn("unknown scale, using c major", "scale", scale, "mode", mode)
	return scales[fallbackScale]
}

func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *Generator) RandomNote(scale, mode string) model.Note {
	notes := g.Scale(scale, mode)
	name := notes[g.rng.Intn(len(notes))]
	return mustNote(name, g.between(noteMinOctave, noteMaxOctave))
}

func (g *Generator) RandomChord(scale, mode string) model.Chord {
	notes := g.Scale(scale, mode)
	degree := chordDegrees[g.rng.Intn(len(chordDegrees))]
	return Triad(notes, degree, g.between(chordMinOctave, chordMaxOctave))
}

func (g *Generator) RandomInvertedChord(scale, mode string) model.Chord {
	c := g.RandomChord(scale, mode)
	c.Inversion = g.rng.Intn(maxInversion + 1)
	return c
}

// Triad stacks root, third and fifth of the given 1-based scale degree
// upwards from the root in octave.
func Triad(scale []string, degree, octave int) model.Chord {
	root := degree - 1
	names := []string{scale[root], scale[(root+2)%7], scale[(root+4)%7]}

	notes := make(model.Notes, 0, len(names))
	prev := -1
	for _, name := range names {
		n := mustNote(name, octave)
		for n.Semitone() <= prev {
			n = mustNote(name, n.Octave()+1)
		}
		notes = append(notes, n)
		prev = n.Semitone()
	}

	return model.Chord{Name: chordName(notes), Notes: notes}
}

func chordName(notes model.Notes) string {
	root := notes[0].Name()
	name := strings.ToUpper(root[:1]) + root[1:]

	third := (notes[1].PitchClass() - notes[0].PitchClass() + 12) % 12
	fifth := (notes[2].PitchClass() - notes[0].PitchClass() + 12) % 12
	switch {
	case third == 3 && fifth == 6:
		return name + " dim"
	case third == 3:
		return name + " min"
	default:
		return name + " maj"
	}
}

func mustNote(name string, octave int) model.Note {
	n, err := model.NewNote(name, octave)
	if err != nil {
		panic(fmt.Sprintf("scale table: %v", err))
	}
	return n
}
