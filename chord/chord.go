package chord

import (
	"fmt"
	"sort"

	"github.com/jsphweid/smartpiano/model"
)

// CreateChordKey builds a stable key such as "48-52-55" from the absolute
// semitones of the notes, lowest first.
func CreateChordKey(notes model.Notes) string {
	semitones := Semitones(notes)
	sort.Ints(semitones)
	var res string
	for i, s := range semitones {
		res += fmt.Sprintf("%v", s)
		if i < len(semitones)-1 {
			res += "-"
		}
	}
	return res
}

func PitchClasses(notes model.Notes) []int {
	res := make([]int, len(notes))
	for i, n := range notes {
		res[i] = n.PitchClass()
	}
	return res
}

func Semitones(notes model.Notes) []int {
	res := make([]int, len(notes))
	for i, n := range notes {
		res[i] = n.Semitone()
	}
	return res
}

// MatchNote is the single-note comparison: letter, accidental and octave must be identical.
func MatchNote(played, expected model.Note) bool {
	return played == expected
}

// MatchChord compares the played and expected notes as sorted pitch classes,
// ignoring octave and order.
func MatchChord(played, expected model.Notes) bool {
	if len(played) != len(expected) {
		return false
	}

	p := PitchClasses(played)
	e := PitchClasses(expected)
	sort.Ints(p)
	sort.Ints(e)
	for i := range p {
		if p[i] != e[i] {
			return false
		}
	}
	return true
}

// MaxSpread is the largest gap allowed between two neighbouring played notes
// for them to count as one hand position.
const MaxSpread = 12

// MatchInversion checks the played notes against the expected root-position
// notes voiced in the given inversion, 1-based: 1 = root position, 2 = first
// inversion, 3 = second inversion.
func MatchInversion(played, expected model.Notes, inversion int) bool {
	if len(played) != len(expected) {
		return false
	}
	if inversion < 1 || inversion > len(expected) {
		return false
	}

	p := Semitones(played)
	sort.Ints(p)
	for i := 1; i < len(p); i++ {
		if p[i]-p[i-1] > MaxSpread {
			return false
		}
	}

	e := Semitones(Recalibrate(expected, inversion))
	for i := range e {
		if p[i]%12 != e[i]%12 {
			return false
		}
	}
	return true
}

// Recalibrate rotates the expected notes so that the note at index inversion-1 comes first.
func Recalibrate(expected model.Notes, inversion int) model.Notes {
	if len(expected) == 0 {
		return nil
	}
	start := (inversion - 1) % len(expected)
	res := make(model.Notes, 0, len(expected))
	res = append(res, expected[start:]...)
	res = append(res, expected[:start]...)
	return res
}

// Split sorts the played notes into those whose pitch class appears anywhere
// in the expected notes and those that don't, keeping the played order.
func Split(played, expected model.Notes) (correct, incorrect model.Notes) {
	wanted := make(map[int]bool, len(expected))
	for _, pc := range PitchClasses(expected) {
		wanted[pc] = true
	}
	for _, n := range played {
		if wanted[n.PitchClass()] {
			correct = append(correct, n)
		} else {
			incorrect = append(incorrect, n)
		}
	}
	return correct, incorrect
}

// CountCorrect is the partial-credit score: how many played notes belong to the expected chord.
func CountCorrect(played, expected model.Notes) int {
	correct, _ := Split(played, expected)
	return len(correct)
}

// Covers reports whether played holds every pitch class of expected and
// nothing outside it. Doubled notes in other octaves are fine.
func Covers(played, expected model.Notes) bool {
	correct, incorrect := Split(played, expected)
	if len(incorrect) > 0 {
		return false
	}
	heard := make(map[int]bool, len(correct))
	for _, pc := range PitchClasses(correct) {
		heard[pc] = true
	}
	for _, pc := range PitchClasses(expected) {
		if !heard[pc] {
			return false
		}
	}
	return true
}
