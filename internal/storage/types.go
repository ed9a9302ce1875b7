package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"gigchat/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

const keySep = "\x00"

// conversationKey orders conversations of one job next to each other so they
// can be found with a prefix scan.
func conversationKey(jobID, clientID, workerID string) []byte {
	return []byte(jobID + keySep + clientID + keySep + workerID)
}

func jobPrefix(jobID string) []byte {
	return []byte(jobID + keySep)
}

type DBConversation struct {
	JobID         string `msgpack:"jobId"`
	ClientID      string `msgpack:"clientId"`
	WorkerID      string `msgpack:"workerId"`
	JobTitle      string `msgpack:"jobTitle"`
	ClientName    string `msgpack:"clientName"`
	WorkerName    string `msgpack:"workerName"`
	LastMessage   string `msgpack:"lastMessage"`
	LastMessageAt int64  `msgpack:"lastMessageAt"`
	CreatedAt     int64  `msgpack:"createdAt"`
	UnreadClient  int    `msgpack:"unreadClient"`
	UnreadWorker  int    `msgpack:"unreadWorker"`
}

func (c *DBConversation) Key() []byte {
	return conversationKey(c.JobID, c.ClientID, c.WorkerID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

func (c *DBConversation) toModel() models.Conversation {
	return models.Conversation{
		JobID:         c.JobID,
		ClientID:      c.ClientID,
		WorkerID:      c.WorkerID,
		JobTitle:      c.JobTitle,
		ClientName:    c.ClientName,
		WorkerName:    c.WorkerName,
		LastMessage:   c.LastMessage,
		LastMessageAt: fromMillis(c.LastMessageAt),
		CreatedAt:     fromMillis(c.CreatedAt),
		UnreadCount: models.UnreadCount{
			Client: c.UnreadClient,
			Worker: c.UnreadWorker,
		},
	}
}

func (c *DBConversation) setUnread(role models.Role, n int) {
	switch role {
	case models.RoleClient:
		c.UnreadClient = n
	case models.RoleWorker:
		c.UnreadWorker = n
	}
}

func (c *DBConversation) seatOf(userID string) (models.Role, bool) {
	switch userID {
	case c.ClientID:
		return models.RoleClient, true
	case c.WorkerID:
		return models.RoleWorker, true
	}
	return "", false
}

func (c *DBConversation) resetUnread(role models.Role) bool {
	switch role {
	case models.RoleClient:
		changed := c.UnreadClient != 0
		c.UnreadClient = 0
		return changed
	case models.RoleWorker:
		changed := c.UnreadWorker != 0
		c.UnreadWorker = 0
		return changed
	}
	return false
}

type DBMessage struct {
	Seq        uint64 `msgpack:"seq"`
	ID         string `msgpack:"id"`
	JobID      string `msgpack:"jobId"`
	SenderID   string `msgpack:"senderId"`
	SenderName string `msgpack:"senderName"`
	SenderRole string `msgpack:"senderRole"`
	ReceiverID string `msgpack:"receiverId"`
	Body       string `msgpack:"body"`
	Kind       string `msgpack:"kind"`
	HTML       string `msgpack:"html"`
	CreatedAt  int64  `msgpack:"createdAt"`
	Read       bool   `msgpack:"read"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func newDBMessage(m models.Message) DBMessage {
	return DBMessage{
		ID:         m.ID,
		JobID:      m.JobID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderRole: string(m.SenderRole),
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		Kind:       string(m.Kind),
		HTML:       m.HTML,
		CreatedAt:  m.CreatedAt.UnixMilli(),
		Read:       m.Read,
	}
}

func (m *DBMessage) toModel() models.Message {
	return models.Message{
		ID:         m.ID,
		JobID:      m.JobID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		SenderRole: models.Role(m.SenderRole),
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		Kind:       models.MessageKind(m.Kind),
		HTML:       m.HTML,
		CreatedAt:  fromMillis(m.CreatedAt),
		Read:       m.Read,
	}
}

// between reports whether the message was exchanged by the two users.
func (m *DBMessage) between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

type DBPushSubscription struct {
	UserID   string `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	Auth     string `msgpack:"auth"`
	P256dh   string `msgpack:"p256dh"`
}

func (s *DBPushSubscription) Key() []byte {
	return []byte(s.Endpoint)
}

func (s *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(s))
}

func (s *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(s))
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
