package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jsphweid/smartpiano/protocol"
)

var (
	ErrNoPeer       = errors.New("no client connected")
	ErrDisconnected = errors.New("client disconnected")
	ErrNotStarted   = errors.New("transport not started")
	ErrInUse        = errors.New("endpoint already in use")
)

// Socket serves exactly one client at a time over a unix domain socket.
// A later WaitForClient replaces whatever connection came before it.
type Socket struct {
	logger *slog.Logger

	mu       sync.Mutex
	endpoint string
	ln       *net.UnixListener
	conn     net.Conn
	reader   *protocol.Reader
}

func New(logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{logger: logger}
}

// Start binds the socket. A leftover socket file nobody listens on is
// removed first; one that still answers is reported as ErrInUse.
func (s *Socket) Start(endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return fmt.Errorf("already listening on %s", s.endpoint)
	}
	if err := clearStale(endpoint); err != nil {
		return err
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: endpoint, Net: "unix"})
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}
	ln.SetUnlinkOnClose(true)

	s.ln = ln
	s.endpoint = endpoint
	s.logger.Info("listening", "endpoint", endpoint)
	return nil
}

func clearStale(endpoint string) error {
	info, err := os.Lstat(endpoint)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", endpoint, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s is not a socket", ErrInUse, endpoint)
	}

	conn, err := net.DialTimeout("unix", endpoint, 200*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%w: %s", ErrInUse, endpoint)
	}
	if err := os.Remove(endpoint); err != nil {
		return fmt.Errorf("failed to remove stale socket %s: %w", endpoint, err)
	}
	return nil
}

// WaitForClient blocks until a client connects or ctx is done.
func (s *Socket) WaitForClient(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return ErrNotStarted
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// wake Accept when ctx ends; a deadline left over from an earlier call is cleared first
	ln.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		ln.SetDeadline(time.Now())
	})
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			ln.SetDeadline(time.Time{})
			return ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return ErrNotStarted
		}
		return fmt.Errorf("failed to accept connection: %w", err)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.logger.Info("replacing previous client")
		s.conn.Close()
	}
	s.conn = conn
	s.reader = protocol.NewReader(conn)
	s.mu.Unlock()

	s.logger.Info("client connected", "endpoint", s.endpoint)
	return nil
}

func (s *Socket) peer() (net.Conn, *protocol.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.reader
}

// drop forgets conn unless it was already replaced.
func (s *Socket) drop(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn.Close()
		s.conn = nil
		s.reader = nil
	}
}

func (s *Socket) Send(m protocol.Message) error {
	conn, _ := s.peer()
	if conn == nil {
		return ErrNoPeer
	}

	data, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		s.drop(conn)
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	s.logger.Debug("sent message", "type", m.Type)
	return nil
}

// Receive blocks until a whole message has arrived. On failure it returns
// an error message alongside the error: ErrNoPeer, ErrDisconnected, or a
// protocol.ErrMalformed frame, after which the connection stays usable.
func (s *Socket) Receive() (protocol.Message, error) {
	conn, reader := s.peer()
	if conn == nil {
		return failed(protocol.CodeState, ErrNoPeer), ErrNoPeer
	}

	m, err := reader.ReadMessage()
	switch {
	case err == nil:
		s.logger.Debug("received message", "type", m.Type)
		return m, nil
	case errors.Is(err, protocol.ErrMalformed):
		return failed(protocol.CodeProtocol, err), err
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		s.drop(conn)
		return failed(protocol.CodeState, ErrDisconnected), ErrDisconnected
	default:
		s.drop(conn)
		err = fmt.Errorf("%w: %v", ErrDisconnected, err)
		return failed(protocol.CodeState, err), err
	}
}

func failed(code string, err error) protocol.Message {
	return protocol.Error(code, err.Error())
}

// WatchPeer returns a context that also ends, with cause ErrDisconnected,
// when the current client closes its side of the connection. It does not
// read messages: anything the client sends meanwhile is left for the next
// Receive. Call stop before the next Receive.
func (s *Socket) WatchPeer(ctx context.Context) (context.Context, context.CancelFunc) {
	wctx, cancel := context.WithCancelCause(ctx)
	conn, reader := s.peer()
	if conn == nil {
		cancel(ErrNoPeer)
		return wctx, func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := reader.Wait()
		if err == nil || errors.Is(err, os.ErrDeadlineExceeded) {
			return
		}
		s.logger.Info("client went away while busy", "error", err)
		s.drop(conn)
		cancel(ErrDisconnected)
	}()

	return wctx, func() {
		// wake the pending Wait, then lift the deadline for later reads
		conn.SetReadDeadline(time.Now())
		<-done
		conn.SetReadDeadline(time.Time{})
		cancel(context.Canceled)
	}
}

// Hangup closes the current client, if any, and keeps listening.
func (s *Socket) Hangup() {
	conn, _ := s.peer()
	if conn != nil {
		s.drop(conn)
		s.logger.Info("hung up on client")
	}
}

func (s *Socket) IsClientConnected() bool {
	conn, _ := s.peer()
	return conn != nil
}

func (s *Socket) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Stop closes the client and the listener and removes the socket file.
// Calling it again, or before Start, does nothing.
func (s *Socket) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
		s.reader = nil
	}
	if s.ln != nil {
		errs = append(errs, s.ln.Close())
		s.ln = nil
		s.logger.Info("stopped listening", "endpoint", s.endpoint)
	}
	return errors.Join(errs...)
}
