package ws

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/labwatch/internal/model"
)

// Inbound command types.
const (
	CmdSendMessage = "send_message"
	CmdTyping      = "typing"
	CmdRead        = "read"
)

type EventType string

const (
	EventMessage    EventType = "message"
	EventTyping     EventType = "typing"
	EventRead       EventType = "read"
	EventUserStatus EventType = "user_status"
	EventError      EventType = "error"
)

// Client-visible error texts.
const (
	msgUnknownType  = "Unknown message type"
	msgInvalidFrame = "Invalid message format"
	msgRateLimited  = "Rate limit exceeded"
	msgRoomNotFound = "room not found"
	msgNotMember    = "not a member"
	msgReplyMissing = "reply target not found"
	msgSendFailed   = "failed to send message"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown message type")
)

// PayloadError means the frame type was recognized but its data did not decode or validate.
// Message is what the sender is told.
type PayloadError struct {
	Type    string
	Message string
	Err     error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s payload: %v", e.Type, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// Frame is the raw client frame: {"type": "...", "data": {...}}.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Command is one of *SendMessage, *Typing or *Read.
type Command interface {
	commandType() string
}

type SendMessage struct {
	RoomID  int64             `json:"roomId" validate:"required,gt=0"`
	Content string            `json:"content" validate:"required,max=4000"`
	Type    model.MessageType `json:"type" validate:"omitempty,oneof=text image file"`
	ReplyTo *int64            `json:"replyTo" validate:"omitempty,gt=0"`
}

type Typing struct {
	RoomID int64 `json:"roomId" validate:"required,gt=0"`
}

type Read struct {
	RoomID int64 `json:"roomId" validate:"required,gt=0"`
}

func (*SendMessage) commandType() string { return CmdSendMessage }
func (*Typing) commandType() string      { return CmdTyping }
func (*Read) commandType() string        { return CmdRead }

// DecodeCommand parses a raw text frame into a Command.
func DecodeCommand(raw []byte) (Command, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var cmd Command
	switch f.Type {
	case CmdSendMessage:
		cmd = &SendMessage{}
	case CmdTyping:
		cmd = &Typing{}
	case CmdRead:
		cmd = &Read{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}

	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, cmd); err != nil {
			return nil, &PayloadError{Type: f.Type, Message: msgInvalidFrame, Err: err}
		}
	}
	if err := getValidator().Struct(cmd); err != nil {
		return nil, &PayloadError{Type: f.Type, Message: validationMessage(err), Err: err}
	}
	return cmd, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report wire names (roomId) rather than Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validationMessage turns the first failed field into a sentence for the client.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return msgInvalidFrame
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// EventPayload is one of *MessagePayload, TypingPayload, ReadPayload,
// UserStatusPayload or ErrorPayload.
type EventPayload interface {
	EventType() EventType
}

// Event is a server frame: {"type": "...", "roomId": 1, "data": {...}}.
type Event struct {
	RoomID  int64
	Payload EventPayload
}

type wireEvent struct {
	Type   EventType    `json:"type"`
	RoomID int64        `json:"roomId,omitempty"`
	Data   EventPayload `json:"data"`
}

func (e Event) Type() EventType { return e.Payload.EventType() }

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, errors.New("ws: event without payload")
	}
	return json.Marshal(wireEvent{Type: e.Payload.EventType(), RoomID: e.RoomID, Data: e.Payload})
}

// MessagePayload is the persisted message with its sender (and reply preview) attached.
type MessagePayload model.ChatMessage

type TypingPayload struct {
	UserID int64 `json:"userId"`
}

type ReadPayload struct {
	UserID    int64     `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type UserStatusPayload struct {
	UserID    int64     `json:"userId"`
	IsOnline  bool      `json:"isOnline"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func (*MessagePayload) EventType() EventType  { return EventMessage }
func (TypingPayload) EventType() EventType     { return EventTyping }
func (ReadPayload) EventType() EventType       { return EventRead }
func (UserStatusPayload) EventType() EventType { return EventUserStatus }
func (ErrorPayload) EventType() EventType      { return EventError }
