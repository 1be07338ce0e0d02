package model

import "fmt"

// Chord is a named triad (or larger) in root position plus the inversion the
// player is asked to voice: 0 = root position, 1 = first inversion, 2 = second.
type Chord struct {
	Name      string
	Notes     Notes
	Inversion int
}

// Voicing is the chord as it sounds in its inversion: the first Inversion
// notes are moved up one octave and placed after the others.
func (c Chord) Voicing() (Notes, error) {
	if c.Inversion == 0 {
		return append(Notes(nil), c.Notes...), nil
	}
	if c.Inversion < 0 || c.Inversion >= len(c.Notes) {
		return nil, fmt.Errorf("inversion %d out of range for %d notes", c.Inversion, len(c.Notes))
	}

	res := make(Notes, 0, len(c.Notes))
	res = append(res, c.Notes[c.Inversion:]...)
	for _, n := range c.Notes[:c.Inversion] {
		up, err := n.Transpose(1)
		if err != nil {
			return nil, fmt.Errorf("voicing %s: %w", c.Name, err)
		}
		res = append(res, up)
	}
	return res, nil
}
