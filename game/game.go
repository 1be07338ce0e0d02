// Package game runs one configured game: a series of challenges, each judged
// against what the player plays on the keyboard.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jsphweid/smartpiano/model"
	"github.com/jsphweid/smartpiano/protocol"
)

// ErrAborted is returned when the client sends quit in the middle of a game.
var ErrAborted = errors.New("game aborted by client")

type Transport interface {
	Send(m protocol.Message) error
	Receive() (protocol.Message, error)
}

// PeerWatcher is implemented by transports that notice a client leaving
// without reading from it. While a challenge waits for the keyboard, the
// wait ends as soon as the client is gone.
type PeerWatcher interface {
	WatchPeer(ctx context.Context) (context.Context, context.CancelFunc)
}

type NoteReader interface {
	ReadNotes(ctx context.Context) (model.Notes, error)
	Discard()
}

type Challenges interface {
	RandomNote(scale, mode string) model.Note
	RandomChord(scale, mode string) model.Chord
	RandomInvertedChord(scale, mode string) model.Chord
}

type Deps struct {
	Transport  Transport
	Input      NoteReader
	Challenges Challenges
	Logger     *slog.Logger
}

// Mode plays one full game and reports its totals.
type Mode interface {
	Play(ctx context.Context) (model.GameResult, error)
}

func New(cfg model.GameConfig, deps Deps) (Mode, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("game", cfg.Type.String())

	r := runner{cfg: cfg, deps: deps}
	switch cfg.Type {
	case model.GameTypeNote:
		return &NoteGame{runner: r}, nil
	case model.GameTypeChord:
		return &ChordGame{runner: r}, nil
	case model.GameTypeInversed:
		return &ChordGame{runner: r, inversions: true}, nil
	case model.GameTypeUnknown:
	}
	return nil, fmt.Errorf("%w: %q", model.ErrUnknownGameType, cfg.TypeName)
}

type outcome int

const (
	missed outcome = iota
	partial
	perfect
)

func (o outcome) String() string {
	switch o {
	case perfect:
		return "perfect"
	case partial:
		return "partial"
	}
	return "incorrect"
}

// runner holds what every mode shares: the challenge loop and the wait for
// ready between challenges.
type runner struct {
	cfg  model.GameConfig
	deps Deps
}

func (r *runner) play(ctx context.Context, round func(ctx context.Context, id int) (outcome, error)) (model.GameResult, error) {
	var res model.GameResult
	start := time.Now()
	limit := r.cfg.MaxChallenges
	logger := r.deps.Logger

	logger.Info("game started", "scale", r.cfg.Scale, "mode", r.cfg.Mode, "challenges", limit)
	for i := 0; i < limit; i++ {
		res.Total++
		o, err := round(ctx, i+1)
		if err != nil {
			return res, err
		}
		switch o {
		case perfect:
			res.Perfect++
		case partial:
			res.Partial++
		}
		logger.Info("challenge judged", "id", i+1, "outcome", o.String())

		if i == limit-1 {
			break
		}
		m, err := r.deps.Transport.Receive()
		if err != nil {
			return res, err
		}
		if m.Type == protocol.TypeQuit {
			return res, ErrAborted
		}
		if m.Type != protocol.TypeReady {
			logger.Warn("expected ready, ending game early", "type", m.Type)
			break
		}
	}

	res.Duration = time.Since(start)
	logger.Info("game over", "perfect", res.Perfect, "partial", res.Partial, "total", res.Total)
	return res, nil
}

// listen clears anything played before the challenge, sends it and waits for
// the player's answer.
func (r *runner) listen(ctx context.Context, challenge protocol.Message) (model.Notes, time.Duration, error) {
	r.deps.Input.Discard()
	if err := r.deps.Transport.Send(challenge); err != nil {
		return nil, 0, err
	}
	readCtx := ctx
	if w, ok := r.deps.Transport.(PeerWatcher); ok {
		var stop context.CancelFunc
		readCtx, stop = w.WatchPeer(ctx)
		defer stop()
	}

	began := time.Now()
	played, err := r.deps.Input.ReadNotes(readCtx)
	if err != nil {
		if ctx.Err() == nil && readCtx.Err() != nil {
			err = context.Cause(readCtx)
		}
		return nil, 0, fmt.Errorf("reading notes: %w", err)
	}
	return played, time.Since(began), nil
}

func resultMessage(id int, took time.Duration) protocol.Message {
	return protocol.New(protocol.TypeResult).
		With(protocol.FieldID, strconv.Itoa(id)).
		With(protocol.FieldDuration, strconv.FormatInt(took.Milliseconds(), 10))
}
