package game

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jsphweid/smartpiano/chord"
	"github.com/jsphweid/smartpiano/model"
	"github.com/jsphweid/smartpiano/protocol"
)

// ChordGame asks for triads. Without inversions a chord is perfect when every
// chord tone is there in any octave or order, doublings included, and nothing
// else is; with inversions the lowest note and the order upwards must match
// the requested inversion too.
type ChordGame struct {
	runner
	inversions bool
}

func (g *ChordGame) Play(ctx context.Context) (model.GameResult, error) {
	return g.play(ctx, g.round)
}

func (g *ChordGame) target() model.Chord {
	if g.inversions {
		return g.deps.Challenges.RandomInvertedChord(g.cfg.Scale, g.cfg.Mode)
	}
	return g.deps.Challenges.RandomChord(g.cfg.Scale, g.cfg.Mode)
}

func (g *ChordGame) round(ctx context.Context, id int) (outcome, error) {
	target := g.target()
	voicing, err := target.Voicing()
	if err != nil {
		return missed, fmt.Errorf("challenge %d: %w", id, err)
	}
	g.deps.Logger.Debug("challenge", "id", id, "chord", target.Name, "notes", voicing.String())

	challenge := protocol.New(protocol.TypeChord).
		With(protocol.FieldName, target.Name).
		With(protocol.FieldNotes, voicing.String()).
		With(protocol.FieldID, strconv.Itoa(id))
	if g.inversions {
		challenge.Set(protocol.FieldInversion, strconv.Itoa(target.Inversion))
	}
	played, took, err := g.listen(ctx, challenge)
	if err != nil {
		return missed, err
	}

	res := resultMessage(id, took)
	correct, incorrect := chord.Split(played, target.Notes)
	if len(correct) > 0 {
		res.Set(protocol.FieldCorrect, correct.String())
	}
	if len(incorrect) > 0 {
		res.Set(protocol.FieldIncorrect, incorrect.String())
	}

	o := g.judge(played, target)
	return o, g.deps.Transport.Send(res)
}

func (g *ChordGame) judge(played model.Notes, target model.Chord) outcome {
	var matched bool
	if g.inversions {
		matched = chord.MatchInversion(played, target.Notes, target.Inversion+1)
	} else {
		matched = chord.Covers(played, target.Notes)
	}
	switch {
	case matched:
		return perfect
	case chord.CountCorrect(played, target.Notes) > 0:
		return partial
	}
	return missed
}
