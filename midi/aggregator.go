package midi

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/jsphweid/smartpiano/chord"
	"github.com/jsphweid/smartpiano/model"
)

// Aggregator groups note-ons struck within the quiet window of each other
// into one chord. Each note re-arms the window; when it runs out the
// accumulated notes are published as a chord.
type Aggregator struct {
	logger   *slog.Logger
	buf      *chordBuffer
	debounce func(f func())

	mu      sync.Mutex
	pending model.Notes
	closed  bool
}

func newAggregator(window time.Duration, buf *chordBuffer, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		logger:   logger,
		buf:      buf,
		debounce: debounce.New(window),
	}
}

func (a *Aggregator) NoteOn(n model.Note) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.pending = append(a.pending, n)
	a.mu.Unlock()

	a.debounce(a.flush)
}

// flush runs on the debounce timer. Holding mu while publishing means Close
// returns only after an in-flight flush has finished.
func (a *Aggregator) flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || len(a.pending) == 0 {
		return
	}
	notes := a.pending
	a.pending = nil
	a.logger.Debug("chord finished", "notes", notes.String(), "key", chord.CreateChordKey(notes))
	a.buf.publish(notes)
}

// Discard forgets notes still waiting for the window to close. The armed
// timer then finds nothing to publish.
func (a *Aggregator) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = nil
}

func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.pending = nil
}
