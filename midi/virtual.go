package midi

import (
	"errors"
	"sync"
	"time"

	"github.com/jsphweid/smartpiano/model"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// VirtualInput is an in-process Input that tests and the e2e suite play into.
type VirtualInput struct {
	name  string
	start time.Time

	mu       sync.Mutex
	listener func(gomidi.Message, int32)
	closed   bool
}

func NewVirtualInput(name string) *VirtualInput {
	return &VirtualInput{name: name, start: time.Now()}
}

func (v *VirtualInput) String() string {
	return v.name
}

func (v *VirtualInput) Listen(fn func(msg gomidi.Message, timestampms int32)) (func(), error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, errors.New("virtual input closed")
	}
	if v.listener != nil {
		return nil, errors.New("virtual input already has a listener")
	}
	v.listener = fn
	return func() {
		v.mu.Lock()
		v.listener = nil
		v.mu.Unlock()
	}, nil
}

func (v *VirtualInput) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.listener = nil
	return nil
}

// Send delivers msg to the listener and reports whether there was one.
func (v *VirtualInput) Send(msg gomidi.Message) bool {
	v.mu.Lock()
	fn := v.listener
	v.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(msg, int32(time.Since(v.start).Milliseconds()))
	return true
}

// Play strikes the notes together, as one hand on the keyboard would.
func (v *VirtualInput) Play(notes ...model.Note) bool {
	for _, n := range notes {
		if !v.Send(gomidi.NoteOn(0, n.MIDIKey(), 100)) {
			return false
		}
	}
	return true
}

// Release sends the matching note-offs; they never form a chord.
func (v *VirtualInput) Release(notes ...model.Note) bool {
	for _, n := range notes {
		if !v.Send(gomidi.NoteOff(0, n.MIDIKey())) {
			return false
		}
	}
	return true
}

func (v *VirtualInput) Opener() Opener {
	return func() (Input, error) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.closed {
			return nil, errors.New("virtual input closed")
		}
		return v, nil
	}
}
