package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBodyTooLong is returned when a message body exceeds MaxBodyLength.
	ErrBodyTooLong = errors.New("message body too long")
	// ErrPersistence is returned when the conversation store rejects a write.
	ErrPersistence = errors.New("persistence failure")
)

const (
	MaxBodyLength             = 2000
	MaxNameLength             = 50
	LastMessagePreviewLength  = 100
	NotificationPreviewLength = 50
)

type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
	// RoleUser is stored when a sender did not declare a role.
	RoleUser Role = "user"
)

// Valid reports whether r is one of the conversation participant roles.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleWorker
}

type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindFile  MessageKind = "file"
	MessageKindImage MessageKind = "image"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindFile, MessageKindImage:
		return true
	}
	return false
}

// UnreadCount holds per-role unread counters of a conversation.
type UnreadCount struct {
	Client int `json:"client"`
	Worker int `json:"worker"`
}

// Get returns the counter of the given role. Unknown roles have no counter.
func (u UnreadCount) Get(role Role) int {
	switch role {
	case RoleClient:
		return u.Client
	case RoleWorker:
		return u.Worker
	}
	return 0
}

// Conversation is the thread between one client and one worker for one job.
type Conversation struct {
	JobID         string      `json:"jobId"`
	ClientID      string      `json:"clientId"`
	WorkerID      string      `json:"workerId"`
	JobTitle      string      `json:"jobTitle"`
	ClientName    string      `json:"clientName"`
	WorkerName    string      `json:"workerName"`
	LastMessage   string      `json:"lastMessage"`
	LastMessageAt time.Time   `json:"lastMessageAt"`
	CreatedAt     time.Time   `json:"createdAt"`
	UnreadCount   UnreadCount `json:"unreadCount"`
}

// RoleOf returns the role userID plays in the conversation.
func (c Conversation) RoleOf(userID string) (Role, bool) {
	switch userID {
	case c.ClientID:
		return RoleClient, true
	case c.WorkerID:
		return RoleWorker, true
	}
	return "", false
}

// Message represents a chat message.
type Message struct {
	ID         string      `json:"id"`
	JobID      string      `json:"conversationKey"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	SenderRole Role        `json:"senderRole"`
	ReceiverID string      `json:"receiverId"`
	Body       string      `json:"body"`
	Kind       MessageKind `json:"kind"`
	HTML       string      `json:"html,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	Read       bool        `json:"read"`
}

// ConversationRef identifies a conversation.
type ConversationRef struct {
	JobID    string `json:"jobId" validate:"required"`
	ClientID string `json:"clientId" validate:"required"`
	WorkerID string `json:"workerId" validate:"required"`
}

// ConversationInit carries the denormalized names stored on creation.
type ConversationInit struct {
	ConversationRef
	JobTitle   string `json:"jobTitle"`
	ClientName string `json:"clientName"`
	WorkerName string `json:"workerName"`
}

// SummaryUpdate is applied to a conversation after a message is stored.
type SummaryUpdate struct {
	JobID         string
	SenderID      string
	ReceiverID    string
	LastMessage   string
	LastMessageAt time.Time
}

// ReadReceipt marks a reader's messages of a job as read. Role is the seat
// whose unread counter is reset; empty keeps every counter as it is.
type ReadReceipt struct {
	JobID    string
	ReaderID string
	Role     Role
}

// ReadResult reports what a ReadReceipt changed.
type ReadResult struct {
	Marked int
	Reset  int
	// Mismatched counts conversations where the reader sits in the seat
	// opposite to Role. Their counters are left alone.
	Mismatched int
}

// PushSubscription is a browser web push endpoint registered by a user.
type PushSubscription struct {
	UserID   string `json:"userId" validate:"required"`
	Endpoint string `json:"endpoint" validate:"required,url"`
	Auth     string `json:"auth" validate:"required"`
	P256dh   string `json:"p256dh" validate:"required"`
}

// APIResponse is the body of REST error responses.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
