package midi

import (
	"context"
	"sync"

	"github.com/jsphweid/smartpiano/model"
)

// chordBuffer is a single slot holding the latest finished chord. A publish
// replaces anything not yet taken; available is true exactly when notes holds
// an unconsumed chord.
type chordBuffer struct {
	mu        sync.Mutex
	notes     model.Notes
	available bool

	notify chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newChordBuffer() *chordBuffer {
	return &chordBuffer{
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (b *chordBuffer) publish(notes model.Notes) {
	b.mu.Lock()
	b.notes = notes
	b.available = true
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *chordBuffer) take() (model.Notes, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.available {
		return nil, false
	}
	notes := b.notes
	b.notes = nil
	b.available = false
	return notes, true
}

// wait blocks until a chord is available, ctx is done or the buffer is closed.
func (b *chordBuffer) wait(ctx context.Context) (model.Notes, error) {
	for {
		if notes, ok := b.take(); ok {
			return notes, nil
		}
		select {
		case <-b.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.closed:
			return nil, ErrClosed
		}
	}
}

func (b *chordBuffer) close() {
	b.once.Do(func() { close(b.closed) })
}
