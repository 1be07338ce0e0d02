package engine

import (
	"sync"

	"github.com/jsphweid/smartpiano/model"
)

type State string

const (
	StateDisconnected   State = "disconnected"
	StateAwaitingConfig State = "awaiting_config"
	StateInSession      State = "in_session"
	StatePlaying        State = "playing"
)

// Status is a point-in-time view of the engine for the status endpoint.
type Status struct {
	State       State             `json:"state"`
	Session     string            `json:"session,omitempty"`
	Config      *model.GameConfig `json:"config,omitempty"`
	MidiReady   bool              `json:"midi_ready"`
	GamesPlayed int               `json:"games_played"`
	LastResult  *model.GameResult `json:"last_result,omitempty"`
}

type statusTracker struct {
	mu sync.Mutex
	s  Status
}

func (t *statusTracker) set(state State, session string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.State = state
	t.s.Session = session
	if state == StateDisconnected || state == StateAwaitingConfig {
		t.s.Config = nil
	}
}

func (t *statusTracker) configure(cfg model.GameConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.State = StateInSession
	t.s.Config = &cfg
}

func (t *statusTracker) finish(res model.GameResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.GamesPlayed++
	t.s.LastResult = &res
}

func (t *statusTracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.s
	if s.Config != nil {
		cfg := *s.Config
		s.Config = &cfg
	}
	if s.LastResult != nil {
		res := *s.LastResult
		s.LastResult = &res
	}
	return s
}
