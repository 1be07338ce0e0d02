// Package engine runs the server side of a session: it accepts a client,
// negotiates a game configuration and plays one game per ready.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jsphweid/smartpiano/constants"
	"github.com/jsphweid/smartpiano/game"
	"github.com/jsphweid/smartpiano/model"
	"github.com/jsphweid/smartpiano/protocol"
	"github.com/jsphweid/smartpiano/transport"
	"golang.org/x/time/rate"
)

type Transport interface {
	Start(endpoint string) error
	WaitForClient(ctx context.Context) error
	Send(m protocol.Message) error
	Receive() (protocol.Message, error)
	IsClientConnected() bool
	Hangup()
	Stop() error
}

type Capture interface {
	Initialize() error
	IsReady() bool
	ReadNotes(ctx context.Context) (model.Notes, error)
	Discard()
}

type Options struct {
	Endpoint      string
	MaxChallenges int
	Challenges    game.Challenges
	Logger        *slog.Logger
}

type Engine struct {
	transport Transport
	capture   Capture
	opts      Options
	logger    *slog.Logger
	// spaces out retries when accepting keeps failing
	acceptLimiter *rate.Limiter

	status statusTracker
}

func New(t Transport, c Capture, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Endpoint == "" {
		opts.Endpoint = constants.DefaultSocketPath
	}
	if opts.MaxChallenges <= 0 {
		opts.MaxChallenges = constants.DefaultMaxChallenges
	}
	return &Engine{
		transport:     t,
		capture:       c,
		opts:          opts,
		logger:        opts.Logger,
		acceptLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// Run listens on the endpoint and serves clients one after another until ctx
// is done. It only returns an error when the endpoint cannot be bound.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.transport.Start(e.opts.Endpoint); err != nil {
		return err
	}
	defer e.transport.Stop()

	// unblocks a session waiting on the client
	stop := context.AfterFunc(ctx, func() {
		e.transport.Stop()
	})
	defer stop()

	e.logger.Info("engine started", "endpoint", e.opts.Endpoint)
	for {
		e.status.set(StateDisconnected, "")
		if err := e.transport.WaitForClient(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrNotStarted) {
				e.logger.Info("engine stopped")
				return nil
			}
			e.logger.Error("failed to accept client", "error", err)
			if err := e.acceptLimiter.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		e.serve(ctx)
	}
}

// serve handles one client until it goes away. A panic ends the session but
// not the engine.
func (e *Engine) serve(ctx context.Context) {
	id := uuid.NewString()
	s := &session{
		Engine: e,
		id:     id,
		logger: e.logger.With("session", id),
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panicked", "panic", r, "stack", string(debug.Stack()))
			s.send(protocol.Error(protocol.CodeInternal, fmt.Sprint(r)))
			e.transport.Hangup()
		}
	}()

	s.logger.Info("client connected")
	e.status.set(StateAwaitingConfig, id)
	s.awaitConfig(ctx)
	s.logger.Info("client disconnected")
}

func (e *Engine) Status() Status {
	s := e.status.snapshot()
	s.MidiReady = e.capture.IsReady()
	return s
}

type session struct {
	*Engine
	id     string
	logger *slog.Logger
}

// send reports whether the client is still there.
func (s *session) send(m protocol.Message) bool {
	if err := s.transport.Send(m); err != nil {
		s.logger.Warn("failed to send message", "type", m.Type, "error", err)
		return s.transport.IsClientConnected()
	}
	return true
}

// receive returns ok=false once the client is gone. Malformed frames are
// answered here and never reach the caller.
func (s *session) receive() (protocol.Message, bool) {
	for {
		m, err := s.transport.Receive()
		if err == nil {
			return m, true
		}
		if errors.Is(err, protocol.ErrMalformed) {
			s.logger.Warn("malformed message", "error", err)
			if !s.send(protocol.Error(protocol.CodeProtocol, err.Error())) {
				return m, false
			}
			continue
		}
		return m, false
	}
}

func (s *session) awaitConfig(ctx context.Context) {
	for ctx.Err() == nil {
		m, ok := s.receive()
		if !ok {
			return
		}

		switch m.Type {
		case protocol.TypeConfig:
			cfg, ok := s.parseConfig(m)
			if !ok {
				if !s.send(protocol.AckError(protocol.CodeGame, "missing game type")) {
					return
				}
				continue
			}
			if !s.capture.IsReady() {
				if err := s.capture.Initialize(); err != nil {
					s.logger.Warn("midi unavailable", "error", err)
					if !s.send(protocol.Error(protocol.CodeMidi, err.Error())) {
						return
					}
					continue
				}
			}
			if !s.send(protocol.Ack()) {
				return
			}
			if !s.runSession(ctx, cfg) {
				return
			}
			s.status.set(StateAwaitingConfig, s.id)
		case protocol.TypeQuit:
			// nothing configured yet
			continue
		default:
			s.logger.Warn("unexpected message", "type", m.Type)
			msg := fmt.Sprintf("unexpected %q, waiting for config", m.Type)
			if !s.send(protocol.Error(protocol.CodeState, msg)) {
				return
			}
		}
	}
}

// parseConfig fails only when the game type is missing. An unknown type is
// accepted here and rejected when the game is created.
func (s *session) parseConfig(m protocol.Message) (model.GameConfig, bool) {
	name := m.Get(protocol.FieldGame)
	if name == "" {
		return model.GameConfig{}, false
	}

	cfg := model.GameConfig{
		TypeName:      name,
		Scale:         m.Get(protocol.FieldScale),
		Mode:          m.Get(protocol.FieldMode),
		MaxChallenges: s.opts.MaxChallenges,
	}
	if cfg.Scale == "" {
		cfg.Scale = constants.DefaultScale
	}
	if cfg.Mode == "" {
		cfg.Mode = constants.DefaultMode
	}
	typ, err := model.ParseGameType(name)
	if err != nil {
		s.logger.Warn("unsupported game type", "game", name)
	}
	cfg.Type = typ

	s.logger.Info("configured", "game", cfg.TypeName, "scale", cfg.Scale, "mode", cfg.Mode)
	return cfg, true
}

// runSession waits for ready or quit and plays at most one game. It returns
// false once the client is gone.
func (s *session) runSession(ctx context.Context, cfg model.GameConfig) bool {
	mode, err := game.New(cfg, game.Deps{
		Transport:  s.transport,
		Input:      s.capture,
		Challenges: s.opts.Challenges,
		Logger:     s.logger,
	})
	if err != nil {
		s.logger.Error("cannot start game", "error", err)
		return s.send(protocol.Error(protocol.CodeInternal, err.Error()))
	}
	s.status.configure(cfg)

	for ctx.Err() == nil {
		m, ok := s.receive()
		if !ok {
			return false
		}

		switch m.Type {
		case protocol.TypeQuit:
			s.logger.Info("session abandoned before ready")
			return true
		case protocol.TypeReady:
			return s.play(ctx, mode)
		default:
			s.logger.Warn("expected ready or quit", "type", m.Type)
			if !s.send(protocol.Error(protocol.CodeState, fmt.Sprintf("unexpected %q, waiting for ready or quit", m.Type))) {
				return false
			}
		}
	}
	return false
}

func (s *session) play(ctx context.Context, mode game.Mode) bool {
	s.status.set(StatePlaying, s.id)
	res, err := mode.Play(ctx)
	switch {
	case err == nil:
		s.status.finish(res)
		return s.send(overMessage(res))
	case errors.Is(err, game.ErrAborted):
		s.logger.Info("game aborted")
		return true
	case ctx.Err() != nil || !s.transport.IsClientConnected():
		return false
	case errors.Is(err, protocol.ErrMalformed):
		return s.send(protocol.Error(protocol.CodeProtocol, err.Error()))
	default:
		s.logger.Error("game failed", "error", err)
		return s.send(protocol.Error(protocol.CodeMidi, err.Error()))
	}
}

func overMessage(res model.GameResult) protocol.Message {
	m := protocol.New(protocol.TypeOver).
		With(protocol.FieldDuration, strconv.FormatInt(res.Duration.Milliseconds(), 10)).
		With(protocol.FieldPerfect, strconv.Itoa(res.Perfect)).
		With(protocol.FieldTotal, strconv.Itoa(res.Total))
	if res.Partial > 0 {
		m.Set(protocol.FieldPartial, strconv.Itoa(res.Partial))
	}
	return m
}
