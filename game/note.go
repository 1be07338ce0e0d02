package game

import (
	"context"
	"strconv"

	"github.com/jsphweid/smartpiano/chord"
	"github.com/jsphweid/smartpiano/model"
	"github.com/jsphweid/smartpiano/protocol"
)

// NoteGame asks for single notes. Only the first note played counts and it
// must match letter, accidental and octave.
type NoteGame struct {
	runner
}

func (g *NoteGame) Play(ctx context.Context) (model.GameResult, error) {
	return g.play(ctx, g.round)
}

func (g *NoteGame) round(ctx context.Context, id int) (outcome, error) {
	target := g.deps.Challenges.RandomNote(g.cfg.Scale, g.cfg.Mode)
	g.deps.Logger.Debug("challenge", "id", id, "note", target.String())

	challenge := protocol.New(protocol.TypeNote).
		With(protocol.FieldNote, target.String()).
		With(protocol.FieldID, strconv.Itoa(id))
	played, took, err := g.listen(ctx, challenge)
	if err != nil {
		return missed, err
	}

	res := resultMessage(id, took)
	o := missed
	if len(played) > 0 && chord.MatchNote(played[0], target) {
		res.Set(protocol.FieldCorrect, target.String())
		o = perfect
	} else {
		res.Set(protocol.FieldIncorrect, played.String())
	}
	return o, g.deps.Transport.Send(res)
}
