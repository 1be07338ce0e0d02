package midi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jsphweid/smartpiano/model"
	gomidi "gitlab.com/gomidi/midi/v2"
	"golang.org/x/time/rate"
)

// pending note-ons between the driver callback and the capture loop
const eventQueueSize = 64

// Capture owns one MIDI input and the background loop that turns its
// note-ons into chords. ReadNotes hands those chords to a single consumer.
type Capture struct {
	logger  *slog.Logger
	open    Opener
	window  time.Duration
	limiter *rate.Limiter
	buf     *chordBuffer

	mu     sync.Mutex
	input  Input
	stop   func()
	quit   chan struct{}
	agg    *Aggregator
	ready  bool
	closed bool
	wg     sync.WaitGroup
}

func NewCapture(open Opener, window time.Duration, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		logger: logger,
		open:   open,
		window: window,
		// opening a missing device is slow on some drivers, so retries are throttled
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 3),
		buf:     newChordBuffer(),
	}
}

// Initialize opens the input and starts the capture loop. It is a no-op when
// already ready. Failures, including driver panics, come back as errors
// wrapping ErrNotReady and leave no goroutine behind.
func (c *Capture) Initialize() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.ready {
		return nil
	}
	if !c.limiter.Allow() {
		return fmt.Errorf("%w: too many attempts, try again shortly", ErrNotReady)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNotReady, r)
		}
	}()

	in, err := c.open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	events := make(chan model.Note, eventQueueSize)
	quit := make(chan struct{})
	stop, err := in.Listen(func(msg gomidi.Message, _ int32) {
		n, ok, err := NoteStart(msg)
		if err != nil {
			c.logger.Debug("ignoring midi message", "error", err)
			return
		}
		if !ok {
			return
		}
		select {
		case events <- n:
		case <-quit:
		}
	})
	if err != nil {
		in.Close()
		return fmt.Errorf("%w: listening on %s: %v", ErrNotReady, in, err)
	}

	c.input = in
	c.stop = stop
	c.quit = quit
	c.agg = newAggregator(c.window, c.buf, c.logger)
	c.ready = true

	c.wg.Add(1)
	go c.loop(events, quit, c.agg)

	c.logger.Info("midi input ready", "device", in.String(), "window", c.window)
	return nil
}

func (c *Capture) loop(events <-chan model.Note, quit <-chan struct{}, agg *Aggregator) {
	defer c.wg.Done()
	for {
		select {
		case <-quit:
			return
		case n := <-events:
			c.logger.Debug("note on", "note", n.String())
			agg.NoteOn(n)
		}
	}
}

func (c *Capture) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// ReadNotes blocks until the next chord is finished and returns its notes.
// It returns ctx.Err() when ctx ends first and ErrClosed after Close.
func (c *Capture) ReadNotes(ctx context.Context) (model.Notes, error) {
	if !c.IsReady() {
		return nil, ErrNotReady
	}
	return c.buf.wait(ctx)
}

// Discard drops everything played so far: a finished chord nobody has read
// and any notes still being grouped. A new challenge is then judged only on
// notes struck after it was shown.
func (c *Capture) Discard() {
	c.mu.Lock()
	agg := c.agg
	c.mu.Unlock()
	// pending first, so a flush racing with us lands in the buffer we empty next
	if agg != nil {
		agg.Discard()
	}
	c.buf.take()
}

// Close stops the capture loop, waits for it to exit and closes the input.
// It is safe to call more than once and on a Capture that never became ready.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasReady := c.ready
	c.ready = false
	c.buf.close()
	if !wasReady {
		c.mu.Unlock()
		return nil
	}
	c.stop()
	close(c.quit)
	c.mu.Unlock()

	c.wg.Wait()
	c.agg.Close()
	if err := c.input.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.input, err)
	}
	c.logger.Info("midi input closed", "device", c.input.String())
	return nil
}
