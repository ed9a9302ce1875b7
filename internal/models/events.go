package models

import (
	"encoding/json"
	"fmt"
)

type EventName string

// Client to server events.
const (
	EventUserJoin    EventName = "user:join"
	EventChatJoin    EventName = "chat:join"
	EventMessageSend EventName = "message:send"
	EventMessageRead EventName = "message:read"
	EventTypingStart EventName = "typing:start"
	EventTypingStop  EventName = "typing:stop"
)

// Server to client events.
const (
	EventMessageReceive     EventName = "message:receive"
	EventNotificationNew    EventName = "notification:new"
	EventMessagesMarkedRead EventName = "messages:marked-read"
	EventTypingShow         EventName = "typing:show"
	EventTypingHide         EventName = "typing:hide"
	EventChatJoined         EventName = "chat:joined"
	EventError              EventName = "error"
)

// Frame is the wire envelope of every websocket message.
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is one of the events a client may send. The set is closed:
// only types in this package implement it.
type ClientEvent interface {
	clientEvent()
}

type UserJoin struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     Role   `json:"role"`
}

type ChatJoin struct {
	ConversationKey string `json:"conversationKey"`
}

type MessageSend struct {
	ConversationKey string      `json:"conversationKey"`
	SenderID        string      `json:"senderId"`
	SenderName      string      `json:"senderName"`
	SenderRole      Role        `json:"senderRole"`
	ReceiverID      string      `json:"receiverId"`
	Body            string      `json:"body"`
	Kind            MessageKind `json:"kind"`
}

type MessageRead struct {
	ConversationKey string `json:"conversationKey"`
	ReaderID        string `json:"readerId"`
}

type TypingStart struct {
	ConversationKey string `json:"conversationKey"`
	UserID          string `json:"userId"`
	UserName        string `json:"userName"`
}

type TypingStop struct {
	ConversationKey string `json:"conversationKey"`
	UserID          string `json:"userId"`
}

func (UserJoin) clientEvent()    {}
func (ChatJoin) clientEvent()    {}
func (MessageSend) clientEvent() {}
func (MessageRead) clientEvent() {}
func (TypingStart) clientEvent() {}
func (TypingStop) clientEvent()  {}

// DecodeClientEvent turns a frame into its typed event.
func DecodeClientEvent(f Frame) (ClientEvent, error) {
	var ev ClientEvent
	switch f.Event {
	case EventUserJoin:
		ev = &UserJoin{}
	case EventChatJoin:
		ev = &ChatJoin{}
	case EventMessageSend:
		ev = &MessageSend{}
	case EventMessageRead:
		ev = &MessageRead{}
	case EventTypingStart:
		ev = &TypingStart{}
	case EventTypingStop:
		ev = &TypingStop{}
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidInput, f.Event)
	}

	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, ev); err != nil {
			return nil, fmt.Errorf("%w: malformed %s payload: %v", ErrInvalidInput, f.Event, err)
		}
	}

	return deref(ev), nil
}

func deref(ev ClientEvent) ClientEvent {
	switch e := ev.(type) {
	case *UserJoin:
		return *e
	case *ChatJoin:
		return *e
	case *MessageSend:
		return *e
	case *MessageRead:
		return *e
	case *TypingStart:
		return *e
	case *TypingStop:
		return *e
	}
	return ev
}

// ServerEvent is a message to the client.
type ServerEvent struct {
	Event EventName `json:"event"`
	Data  any       `json:"data,omitempty"`
}

type Notification struct {
	Type            string `json:"type"`
	ConversationKey string `json:"conversationKey"`
	SenderName      string `json:"senderName"`
	Body            string `json:"body"`
}

type MarkedRead struct {
	ConversationKey string `json:"conversationKey"`
	ReaderID        string `json:"readerId"`
}

type Typing struct {
	ConversationKey string `json:"conversationKey"`
	UserID          string `json:"userId"`
	UserName        string `json:"userName,omitempty"`
}

type Joined struct {
	ConversationKey string `json:"conversationKey"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewErrorEvent(msg string) ServerEvent {
	return ServerEvent{Event: EventError, Data: ErrorPayload{Message: msg}}
}

// Conn is a live client connection as seen by presence, rooms and the chat
// service. Send must not block; it reports whether the event was queued.
type Conn interface {
	ID() string
	Send(ev ServerEvent) bool
}
