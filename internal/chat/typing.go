package chat

import (
	"time"

	"gigchat/internal/content"
	"gigchat/internal/models"
)

// TypingState is the typing throttle of one connection. It is only touched
// from the goroutine processing that connection's events.
type TypingState struct {
	lastShown time.Time
}

func (t *TypingState) allow(now time.Time, interval time.Duration) bool {
	if !t.lastShown.IsZero() && now.Sub(t.lastShown) < interval {
		return false
	}
	t.lastShown = now
	return true
}

// Participant is a connection that carries its own typing state.
type Participant interface {
	models.Conn
	Typing() *TypingState
}

// TypingStart shows the typing indicator to the rest of the room, at most
// once per TypingInterval per connection. It reports whether an event went out.
func (s *Service) TypingStart(conn Participant, key, userID, userName string) bool {
	if key == "" || userID == "" {
		return false
	}
	if !conn.Typing().allow(s.now(), s.cfg.TypingInterval) {
		return false
	}

	s.rooms.BroadcastExceptSender(conn, key, models.ServerEvent{
		Event: models.EventTypingShow,
		Data: models.Typing{
			ConversationKey: key,
			UserID:          userID,
			UserName:        content.SanitizeName(userName, models.MaxNameLength),
		},
	})
	return true
}

// TypingStop hides the typing indicator. It is never throttled.
func (s *Service) TypingStop(conn models.Conn, key, userID string) bool {
	if key == "" || userID == "" {
		return false
	}

	s.rooms.BroadcastExceptSender(conn, key, models.ServerEvent{
		Event: models.EventTypingHide,
		Data:  models.Typing{ConversationKey: key, UserID: userID},
	})
	return true
}
