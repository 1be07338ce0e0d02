package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jsphweid/smartpiano/game"
	"github.com/jsphweid/smartpiano/model"
	"github.com/jsphweid/smartpiano/protocol"
	"github.com/jsphweid/smartpiano/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapture struct {
	mu      sync.Mutex
	ready   bool
	initErr error
	inits   int
	notes   chan model.Notes
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{notes: make(chan model.Notes, 1)}
}

func (f *fakeCapture) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.initErr != nil {
		return f.initErr
	}
	f.ready = true
	return nil
}

func (f *fakeCapture) failInit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initErr = err
}

func (f *fakeCapture) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeCapture) ReadNotes(ctx context.Context) (model.Notes, error) {
	select {
	case n := <-f.notes:
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeCapture) Discard() {}

type fixedChallenges struct{}

func (fixedChallenges) RandomNote(scale, mode string) model.Note {
	return model.MustParseNote("c4")
}

func (fixedChallenges) RandomChord(scale, mode string) model.Chord {
	return model.Chord{Name: "C maj", Notes: model.Notes{
		model.MustParseNote("c4"), model.MustParseNote("e4"), model.MustParseNote("g4"),
	}}
}

func (f fixedChallenges) RandomInvertedChord(scale, mode string) model.Chord {
	return f.RandomChord(scale, mode)
}

type panickyChallenges struct{ fixedChallenges }

func (panickyChallenges) RandomNote(scale, mode string) model.Note {
	panic("note table missing")
}

type multilinePanic struct{ fixedChallenges }

func (multilinePanic) RandomNote(scale, mode string) model.Note {
	panic(errors.New("scale table corrupt\nsee log for details"))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startEngine(t *testing.T, capture Capture, challenges game.Challenges) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "e.sock")
	e := New(transport.New(quietLogger()), capture, Options{
		Endpoint:      path,
		MaxChallenges: 2,
		Challenges:    challenges,
		Logger:        quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	})
	return e, path
}

func dial(t *testing.T, path string) *transport.Client {
	t.Helper()
	var c *transport.Client
	require.Eventually(t, func() bool {
		var err error
		c, err = transport.Dial(context.Background(), path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { c.Close() })
	return c
}

func recv(t *testing.T, c *transport.Client) protocol.Message {
	t.Helper()
	type reply struct {
		m   protocol.Message
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		m, err := c.Receive()
		ch <- reply{m, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.m
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from engine")
	}
	return protocol.Message{}
}

func send(t *testing.T, c *transport.Client, m protocol.Message) {
	t.Helper()
	require.NoError(t, c.Send(m))
}

func config(game string) protocol.Message {
	m := protocol.New(protocol.TypeConfig).With(protocol.FieldScale, "c").With(protocol.FieldMode, "maj")
	if game != "" {
		m.Set(protocol.FieldGame, game)
	}
	return m
}

func requireAckOK(t *testing.T, m protocol.Message) {
	t.Helper()
	require.Equal(t, protocol.TypeAck, m.Type)
	require.Equal(t, protocol.StatusOK, m.Get(protocol.FieldStatus))
}

func requireError(t *testing.T, m protocol.Message, code string) {
	t.Helper()
	require.Equal(t, protocol.TypeError, m.Type, "fields %v", m.Fields)
	require.Equal(t, code, m.Get(protocol.FieldCode))
}

func TestMissingGameIsRejected(t *testing.T) {
	_, path := startEngine(t, newFakeCapture(), fixedChallenges{})
	c := dial(t, path)

	send(t, c, config(""))
	ack := recv(t, c)
	assert.Equal(t, protocol.TypeAck, ack.Type)
	assert.Equal(t, protocol.StatusError, ack.Get(protocol.FieldStatus))
	assert.Equal(t, protocol.CodeGame, ack.Get(protocol.FieldCode))

	send(t, c, config("note"))
	requireAckOK(t, recv(t, c))
}

func TestQuitWhileUnconfiguredIsIgnored(t *testing.T) {
	_, path := startEngine(t, newFakeCapture(), fixedChallenges{})
	c := dial(t, path)

	send(t, c, protocol.New(protocol.TypeQuit))
	send(t, c, protocol.New(protocol.TypeReady))
	// the only reply is to ready
	requireError(t, recv(t, c), protocol.CodeState)

	send(t, c, config("chord"))
	requireAckOK(t, recv(t, c))
}

func TestMidiFailureIsNotFatal(t *testing.T) {
	capture := newFakeCapture()
	capture.failInit(errors.New("no keyboard"))
	_, path := startEngine(t, capture, fixedChallenges{})
	c := dial(t, path)

	send(t, c, config("note"))
	requireError(t, recv(t, c), protocol.CodeMidi)

	capture.failInit(nil)
	send(t, c, config("note"))
	requireAckOK(t, recv(t, c))

	// ready midi is not initialised again
	send(t, c, protocol.New(protocol.TypeQuit))
	send(t, c, config("note"))
	requireAckOK(t, recv(t, c))
	capture.mu.Lock()
	assert.Equal(t, 2, capture.inits)
	capture.mu.Unlock()
}

func TestUnknownGameFailsAtDispatch(t *testing.T) {
	_, path := startEngine(t, newFakeCapture(), fixedChallenges{})
	c := dial(t, path)

	send(t, c, config("scales"))
	requireAckOK(t, recv(t, c))
	requireError(t, recv(t, c), protocol.CodeInternal)

	// back to waiting for config
	send(t, c, protocol.New(protocol.TypeReady))
	requireError(t, recv(t, c), protocol.CodeState)
}

func TestQuitBeforeReadyReturnsToConfig(t *testing.T) {
	_, path := startEngine(t, newFakeCapture(), fixedChallenges{})
	c := dial(t, path)

	send(t, c, config("note"))
	requireAckOK(t, recv(t, c))
	send(t, c, protocol.New(protocol.TypeQuit))
	send(t, c, protocol.New(protocol.TypeReady))
	requireError(t, recv(t, c), protocol.CodeState)
}

func TestUnexpectedMessageInSession(t *testing.T) {
	_, path := startEngine(t, newFakeCapture(), fixedChallenges{})
	c := dial(t, path)

	send(t, c, config("note"))
	requireAckOK(t, recv(t, c))
	send(t, c, config("chord"))
	requireError(t, recv(t, c), protocol.CodeState)

	// still waiting for ready
	send(t, c, protocol.New(protocol.TypeReady))
	challenge := recv(t, c)
	assert.Equal(t, protocol.TypeNote, challenge.Type)
}

func TestFullGame(t *testing.T) {
	capture := newFakeCapture()
	e, path := startEngine(t, capture, fixedChallenges{})
	c := dial(t, path)

	send(t, c, config("note"))
	requireAckOK(t, recv(t, c))
	send(t, c, protocol.New(protocol.TypeReady))

	for i, id := range []string{"1", "2"} {
		challenge := recv(t, c)
		require.Equal(t, protocol.TypeNote, challenge.Type)
		assert.Equal(t, "c4", challenge.Get(protocol.FieldNote))
		assert.Equal(t, id, challenge.Get(protocol.FieldID))
		assert.Equal(t, StatePlaying, e.Status().State)

		capture.notes <- model.Notes{model.MustParseNote("c4")}
		result := recv(t, c)
		require.Equal(t, protocol.TypeResult, result.Type)
		assert.Equal(t, "c4", result.Get(protocol.FieldCorrect))
		if i == 0 {
			send(t, c, protocol.New(protocol.TypeReady))
		}
	}

	over := recv(t, c)
	require.Equal(t, protocol.TypeOver, over.Type)
	assert.Equal(t, "2", over.Get(protocol.FieldPerfect))
	assert.Equal(t, "2", over.Get(protocol.FieldTotal))
	assert.True(t, over.Has(protocol.FieldDuration))
	assert.False(t, over.Has(protocol.FieldPartial))

	require.Eventually(t, func() bool {
		return e.Status().State == StateAwaitingConfig
	}, time.Second, 5*time.Millisecond)
	st := e.Status()
	assert.Equal(t, 1, st.GamesPlayed)
	require.NotNil(t, st.LastResult)
	assert.Equal(t, 2, st.LastResult.Perfect)
	assert.True(t, st.MidiReady)
	assert.NotEmpty(t, st.Session)

	// one game per ready; a new one needs a new config
	send(t, c, protocol.New(protocol.TypeReady))
	requireError(t, recv(t, c), protocol.CodeState)
}

func TestPartialCountInOver(t *testing.T) {
	capture := newFakeCapture()
	_, path := startEngine(t, capture, fixedChallenges{})
	c := dial(t, path)

	send(t, c, config("chord"))
	requireAckOK(t, recv(t, c))
	send(t, c, protocol.New(protocol.TypeReady))

	recv(t, c)
	capture.notes <- model.Notes{model.MustParseNote("c4"), model.MustParseNote("e4")}
	recv(t, c)
	send(t, c, protocol.New(protocol.TypeReady))
	recv(t, c)
	capture.notes <- model.Notes{model.MustParseNote("g3"), model.MustParseNote("c4"), model.MustParseNote("e5")}
	recv(t, c)

	over := recv(t, c)
	require.Equal(t, protocol.TypeOver, over.Type)
	assert.Equal(t, "1", over.Get(protocol.FieldPerfect))
	assert.Equal(t, "1", over.Get(protocol.FieldPartial))
	assert.Equal(t, "2", over.Get(protocol.FieldTotal))
}

func TestMalformedFrameIsReported(t *testing.T) {
	_, path := startEngine(t, newFakeCapture(), fixedChallenges{})
	var conn net.Conn
	require.Eventually(t, func() bool {
		var err error
		conn, err = net.Dial("unix", path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()
	r := protocol.NewReader(conn)

	_, err := conn.Write([]byte("\n"))
	require.NoError(t, err)
	m, err := r.ReadMessage()
	require.NoError(t, err)
	requireError(t, m, protocol.CodeProtocol)

	require.NoError(t, protocol.Write(conn, config("note")))
	m, err = r.ReadMessage()
	require.NoError(t, err)
	requireAckOK(t, m)
}

func TestPanicEndsOnlyTheSession(t *testing.T) {
	_, path := startEngine(t, newFakeCapture(), panickyChallenges{})
	c := dial(t, path)

	send(t, c, config("note"))
	requireAckOK(t, recv(t, c))
	send(t, c, protocol.New(protocol.TypeReady))
	requireError(t, recv(t, c), protocol.CodeInternal)
	_, err := c.Receive()
	assert.ErrorIs(t, err, io.EOF)

	next := dial(t, path)
	send(t, next, config("chord"))
	requireAckOK(t, recv(t, next))
}

func TestMultilinePanicStillReachesClient(t *testing.T) {
	_, path := startEngine(t, newFakeCapture(), multilinePanic{})
	c := dial(t, path)

	send(t, c, config("note"))
	requireAckOK(t, recv(t, c))
	send(t, c, protocol.New(protocol.TypeReady))
	m := recv(t, c)
	requireError(t, m, protocol.CodeInternal)
	assert.Equal(t, "scale table corrupt see log for details", m.Get(protocol.FieldMessage))
}

func TestNextClientAfterDisconnect(t *testing.T) {
	e, path := startEngine(t, newFakeCapture(), fixedChallenges{})
	first := dial(t, path)
	send(t, first, config("note"))
	requireAckOK(t, recv(t, first))
	require.NoError(t, first.Close())

	require.Eventually(t, func() bool {
		return e.Status().State == StateDisconnected
	}, time.Second, 5*time.Millisecond)

	second := dial(t, path)
	send(t, second, config("note"))
	requireAckOK(t, recv(t, second))
}

func TestClientLeavingMidChallengeFreesEngine(t *testing.T) {
	e, path := startEngine(t, newFakeCapture(), fixedChallenges{})
	first := dial(t, path)
	send(t, first, config("note"))
	requireAckOK(t, recv(t, first))
	send(t, first, protocol.New(protocol.TypeReady))
	require.Equal(t, protocol.TypeNote, recv(t, first).Type)

	// nobody plays; the wait for notes must still end with the client gone
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return e.Status().State == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	second := dial(t, path)
	send(t, second, config("chord"))
	requireAckOK(t, recv(t, second))
}

func TestRunFailsWhenEndpointUnavailable(t *testing.T) {
	e := New(transport.New(quietLogger()), newFakeCapture(), Options{
		Endpoint:   filepath.Join(t.TempDir(), "missing", "e.sock"),
		Challenges: fixedChallenges{},
		Logger:     quietLogger(),
	})
	assert.Error(t, e.Run(context.Background()))
}

func TestOverMessage(t *testing.T) {
	m := overMessage(model.GameResult{Duration: 1500 * time.Millisecond, Perfect: 3, Total: 10})
	assert.Equal(t, "1500", m.Get(protocol.FieldDuration))
	assert.Equal(t, "3", m.Get(protocol.FieldPerfect))
	assert.Equal(t, "10", m.Get(protocol.FieldTotal))
	assert.False(t, m.Has(protocol.FieldPartial))

	m = overMessage(model.GameResult{Partial: 2, Total: 10})
	assert.Equal(t, "2", m.Get(protocol.FieldPartial))
}
