package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gigchat/internal/models"
	"gigchat/internal/presence"
	"gigchat/internal/rooms"
)

const (
	DefaultStoreTimeout   = 5 * time.Second
	DefaultTypingInterval = time.Second
)

// Store is the durable conversation store the service writes through to.
type Store interface {
	InsertMessage(ctx context.Context, msg models.Message) (models.Message, error)
	UpdateSummary(ctx context.Context, upd models.SummaryUpdate) (bool, error)
	MarkRead(ctx context.Context, r models.ReadReceipt) (models.ReadResult, error)
}

// OfflineNotifier reaches users that have no live connection.
type OfflineNotifier interface {
	Notify(ctx context.Context, userID string, note models.Notification) error
}

type Config struct {
	StoreTimeout   time.Duration
	TypingInterval time.Duration
	// Offline is optional; nil disables notifications for offline receivers.
	Offline OfflineNotifier
	Log     *slog.Logger
}

// Service coordinates presence, rooms and the conversation store.
type Service struct {
	store    Store
	presence *presence.Registry
	rooms    *rooms.Broadcaster
	offline  OfflineNotifier
	log      *slog.Logger
	cfg      Config
	now      func() time.Time

	background sync.WaitGroup
}

func NewService(store Store, registry *presence.Registry, broadcaster *rooms.Broadcaster, cfg Config) *Service {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = DefaultTypingInterval
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Service{
		store:    store,
		presence: registry,
		rooms:    broadcaster,
		offline:  cfg.Offline,
		log:      cfg.Log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Register binds userID to conn in the presence registry.
func (s *Service) Register(conn models.Conn, userID, userName string, role models.Role) error {
	if err := s.presence.Register(userID, userName, role, conn); err != nil {
		return err
	}
	s.log.Debug("user joined", "user_id", userID, "role", role, "conn_id", conn.ID())
	return nil
}

// Join adds conn to the room of the conversation and acknowledges it.
func (s *Service) Join(conn models.Conn, key string) error {
	if err := s.rooms.Join(conn, key); err != nil {
		return err
	}
	conn.Send(models.ServerEvent{
		Event: models.EventChatJoined,
		Data:  models.Joined{ConversationKey: key},
	})
	return nil
}

// Touch records activity of userID on conn.
func (s *Service) Touch(conn models.Conn, userID string) {
	if userID == "" {
		return
	}
	s.presence.Touch(userID, conn.ID())
}

// Disconnect drops every trace of conn. userID may be empty when the
// connection never sent user:join.
func (s *Service) Disconnect(conn models.Conn, userID string) {
	s.rooms.LeaveAll(conn)
	if userID != "" && s.presence.Release(userID, conn.ID()) {
		s.log.Debug("user left", "user_id", userID, "conn_id", conn.ID())
	}
}

// Wait blocks until background notifications have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// storeContext detaches store calls from the caller's cancellation so a
// write already started survives the client going away.
func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
}

// bestEffort runs a step whose failure must not undo the operation before it.
func (s *Service) bestEffort(step string, fn func() error, attrs ...any) {
	if err := fn(); err != nil {
		s.log.Warn(fmt.Sprintf("%s failed", step), append(attrs, "error", err)...)
	}
}
