package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/coderoom/internal/domain"
	"github.com/go-playground/validator/v10"
)

type EventType string

const (
	EventJoinRoom        EventType = "join-room"
	EventCodeUpdate      EventType = "code-update"
	EventCursorUpdate    EventType = "cursor-update"
	EventLanguageUpdate  EventType = "language-update"
	EventExecutionResult EventType = "execution-result"
	EventPing            EventType = "ping"

	EventJoined EventType = "joined"
	EventError  EventType = "error"
	EventPong   EventType = "pong"
)

// Envelope is the wire shape of every event in both directions.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is one tagged payload. Each event name has exactly one payload type.
type Event interface {
	Type() EventType
}

type JoinRoom struct {
	RoomID        domain.RoomID        `json:"roomId" validate:"required,max=64"`
	ParticipantID domain.ParticipantID `json:"participantId,omitempty" validate:"max=64"`
}

type CodeUpdate struct {
	RoomID domain.RoomID `json:"roomId" validate:"required,max=64"`
	Code   string        `json:"code"`
}

type CursorUpdate struct {
	RoomID        domain.RoomID        `json:"roomId" validate:"required,max=64"`
	ParticipantID domain.ParticipantID `json:"participantId,omitempty" validate:"max=64"`
	LineNumber    int                  `json:"lineNumber" validate:"gte=0"`
	Column        int                  `json:"column" validate:"gte=0"`
}

type LanguageUpdate struct {
	RoomID   domain.RoomID   `json:"roomId" validate:"required,max=64"`
	Language domain.Language `json:"language" validate:"required,oneof=javascript python"`
}

// ExecutionResult carries an opaque result produced outside the server.
type ExecutionResult struct {
	RoomID domain.RoomID   `json:"roomId" validate:"required,max=64"`
	Result json.RawMessage `json:"result" validate:"required"`
}

type Ping struct{}

type Joined struct {
	RoomID        domain.RoomID        `json:"roomId"`
	ParticipantID domain.ParticipantID `json:"participantId,omitempty"`
	Room          domain.Room          `json:"room"`
}

type ErrorEvent struct {
	Error string `json:"error"`
}

type Pong struct{}

func (JoinRoom) Type() EventType        { return EventJoinRoom }
func (CodeUpdate) Type() EventType      { return EventCodeUpdate }
func (CursorUpdate) Type() EventType    { return EventCursorUpdate }
func (LanguageUpdate) Type() EventType  { return EventLanguageUpdate }
func (ExecutionResult) Type() EventType { return EventExecutionResult }
func (Ping) Type() EventType            { return EventPing }
func (Joined) Type() EventType          { return EventJoined }
func (ErrorEvent) Type() EventType      { return EventError }
func (Pong) Type() EventType            { return EventPong }

var validate = validator.New()

// Encode wraps e into its envelope.
func Encode(e Event) (Frame, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type(), err)
	}
	return json.Marshal(Envelope{Type: e.Type(), Payload: payload})
}

// Decode parses one inbound frame into its typed payload and validates it.
// Every failure wraps domain.ErrValidation.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bad envelope: %v: %w", err, domain.ErrValidation)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case EventJoinRoom:
		ev, err = decodeAs[JoinRoom](env.Payload)
	case EventCodeUpdate:
		ev, err = decodeAs[CodeUpdate](env.Payload)
	case EventCursorUpdate:
		ev, err = decodeAs[CursorUpdate](env.Payload)
	case EventLanguageUpdate:
		ev, err = decodeAs[LanguageUpdate](env.Payload)
	case EventExecutionResult:
		ev, err = decodeAs[ExecutionResult](env.Payload)
	case EventPing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("unknown event %q: %w", env.Type, domain.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("bad %s payload: %v: %w", env.Type, err, domain.ErrValidation)
	}
	return ev, nil
}

func decodeAs[T Event](raw json.RawMessage) (Event, error) {
	var v T
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if err := validate.Struct(v); err != nil {
		return nil, err
	}
	return v, nil
}
