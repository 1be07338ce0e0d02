package midi

import (
	"errors"
	"fmt"

	"github.com/jsphweid/smartpiano/model"
	gomidi "gitlab.com/gomidi/midi/v2"
)

var (
	ErrNotReady = errors.New("midi input not ready")
	ErrClosed   = errors.New("midi capture closed")
)

// Input is an opened MIDI source. Listen delivers every incoming message to
// fn until stop is called.
type Input interface {
	String() string
	Listen(fn func(msg gomidi.Message, timestampms int32)) (stop func(), err error)
	Close() error
}

// Opener opens the input a Capture reads from. It is called on every
// Initialize so a keyboard plugged in later can still be picked up.
type Opener func() (Input, error)

// NoteStart returns the note of a note-on message with non-zero velocity.
// Anything else, including keys outside the playable octaves, yields ok=false.
func NoteStart(msg gomidi.Message) (n model.Note, ok bool, err error) {
	// handle panics
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("decoding midi message % X: %v", []byte(msg), r)
		}
	}()

	var ch, key, vel uint8
	if !msg.GetNoteStart(&ch, &key, &vel) {
		return n, false, nil
	}
	n, err = model.NoteFromMIDI(key)
	if err != nil {
		return n, false, err
	}
	return n, true, nil
}
