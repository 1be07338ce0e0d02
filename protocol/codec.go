package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jsphweid/smartpiano/util"
)

var (
	ErrMalformed  = errors.New("malformed message")
	ErrIncomplete = errors.New("incomplete message")
)

// Marshal writes the type line, one key=value line per field (sorted by key)
// and a terminating empty line.
func Marshal(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("%w: empty type", ErrMalformed)
	}
	if strings.ContainsAny(m.Type, "\r\n") {
		return nil, fmt.Errorf("%w: line break in type %q", ErrMalformed, m.Type)
	}

	var buf bytes.Buffer
	buf.WriteString(m.Type)
	buf.WriteByte('\n')
	for _, key := range util.SortedKeys(m.Fields) {
		value := m.Fields[key]
		if key == "" || strings.ContainsAny(key, "=\r\n") {
			return nil, fmt.Errorf("%w: bad field key %q", ErrMalformed, key)
		}
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("%w: line break in field %q", ErrMalformed, key)
		}
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(value)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Unmarshal parses one framed message. Data that does not yet contain the
// terminating empty line yields ErrIncomplete; an empty type line yields
// ErrMalformed. Field lines without '=' are skipped.
func Unmarshal(data []byte) (Message, error) {
	lines, complete := splitFrame(data)
	if len(lines) == 0 {
		return Message{}, ErrIncomplete
	}
	if lines[0] == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if !complete {
		return Message{}, ErrIncomplete
	}

	m := New(lines[0])
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		m.Set(key, value)
	}
	return m, nil
}

// splitFrame returns the CR-stripped lines of the first frame, without the
// terminating empty line, and whether that terminator was found. A trailing
// partial line is never returned.
func splitFrame(data []byte) ([]string, bool) {
	var lines []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return lines, false
		}
		line := strings.TrimRight(string(data[:i]), "\r")
		data = data[i+1:]
		if line == "" {
			if len(lines) == 0 {
				return []string{""}, true
			}
			return lines, true
		}
		lines = append(lines, line)
	}
}

// Reader assembles framed messages from a byte stream.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadMessage blocks until a full frame has arrived. It returns io.EOF when
// the stream ends cleanly between messages and io.ErrUnexpectedEOF when it
// ends inside one.
func (r *Reader) ReadMessage() (Message, error) {
	var frame []byte
	for {
		line, err := r.r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(frame) == 0 && len(line) == 0 {
					return Message{}, io.EOF
				}
				return Message{}, io.ErrUnexpectedEOF
			}
			return Message{}, err
		}
		frame = append(frame, line...)
		if len(bytes.TrimRight(line, "\r\n")) == 0 {
			return Unmarshal(frame)
		}
	}
}

// Wait blocks until at least one byte is buffered or the stream fails. It
// consumes nothing, so the next ReadMessage still sees the whole frame.
func (r *Reader) Wait() error {
	_, err := r.r.Peek(1)
	return err
}

// Write sends one framed message.
func Write(w io.Writer, m Message) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
