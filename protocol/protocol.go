package protocol

import "strings"

const (
	// Client -> Server
	TypeConfig = "config"
	TypeReady  = "ready"
	TypeQuit   = "quit"

	// Server -> Client
	TypeAck    = "ack"
	TypeError  = "error"
	TypeNote   = "note"
	TypeChord  = "chord"
	TypeResult = "result"
	TypeOver   = "over"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// error codes carried by ack and error messages
const (
	CodeGame     = "game"
	CodeMidi     = "midi"
	CodeState    = "state"
	CodeInternal = "internal"
	CodeProtocol = "protocol"
)

// field keys
const (
	FieldGame      = "game"
	FieldScale     = "scale"
	FieldMode      = "mode"
	FieldStatus    = "status"
	FieldCode      = "code"
	FieldMessage   = "message"
	FieldID        = "id"
	FieldNote      = "note"
	FieldName      = "name"
	FieldNotes     = "notes"
	FieldInversion = "inversion"
	FieldDuration  = "duration"
	FieldCorrect   = "correct"
	FieldIncorrect = "incorrect"
	FieldPerfect   = "perfect"
	FieldPartial   = "partial"
	// challenges actually issued; below the configured count when the client
	// ended the game early with something other than ready
	FieldTotal     = "total"
)

// Message is the only unit exchanged over the transport: a type tag and an
// unordered set of string fields.
type Message struct {
	Type   string
	Fields map[string]string
}

func New(typ string) Message {
	return Message{Type: typ, Fields: make(map[string]string)}
}

// With returns the message with the field set, so replies can be built inline.
func (m Message) With(key, value string) Message {
	m.Set(key, value)
	return m
}

func (m *Message) Set(key, value string) {
	if m.Fields == nil {
		m.Fields = make(map[string]string)
	}
	m.Fields[key] = value
}

// Get returns the field value or "" when absent; use Has to tell the two apart.
func (m Message) Get(key string) string {
	return m.Fields[key]
}

func (m Message) Has(key string) bool {
	_, ok := m.Fields[key]
	return ok
}

func Ack() Message {
	return New(TypeAck).With(FieldStatus, StatusOK)
}

func AckError(code, message string) Message {
	m := New(TypeAck).With(FieldStatus, StatusError)
	if code != "" {
		m.Set(FieldCode, code)
	}
	if message != "" {
		m.Set(FieldMessage, OneLine(message))
	}
	return m
}

func Error(code, message string) Message {
	return New(TypeError).With(FieldCode, code).With(FieldMessage, OneLine(message))
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// OneLine flattens free text, such as an error string, so it fits in a field value.
func OneLine(s string) string {
	return lineBreaks.Replace(s)
}
