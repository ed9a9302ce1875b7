package rooms

import (
	"fmt"
	"log/slog"

	"gigchat/internal/models"
	"gigchat/internal/shard"
)

type members map[string]models.Conn

// Broadcaster groups live connections by conversation key and fans events
// out to them. Room tables and per-connection memberships are sharded by key.
type Broadcaster struct {
	rooms       *shard.Map[members]
	memberships *shard.Map[map[string]struct{}]
	log         *slog.Logger
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		rooms:       shard.New[members](shard.DefaultShards),
		memberships: shard.New[map[string]struct{}](shard.DefaultShards),
		log:         log,
	}
}

// Join adds conn to the room of key. Joining twice is harmless.
func (b *Broadcaster) Join(conn models.Conn, key string) error {
	if key == "" {
		return fmt.Errorf("%w: conversationKey is required", models.ErrInvalidInput)
	}
	if conn == nil {
		return fmt.Errorf("%w: connection is required", models.ErrInvalidInput)
	}

	b.rooms.Update(key, func(m members, ok bool) (members, bool) {
		if !ok {
			m = make(members)
		}
		m[conn.ID()] = conn
		return m, true
	})
	b.memberships.Update(conn.ID(), func(set map[string]struct{}, ok bool) (map[string]struct{}, bool) {
		if !ok {
			set = make(map[string]struct{})
		}
		set[key] = struct{}{}
		return set, true
	})
	return nil
}

// LeaveAll drops every membership of conn. Called when the connection closes.
func (b *Broadcaster) LeaveAll(conn models.Conn) {
	var keys []string
	b.memberships.Update(conn.ID(), func(set map[string]struct{}, ok bool) (map[string]struct{}, bool) {
		for k := range set {
			keys = append(keys, k)
		}
		return set, false
	})
	for _, k := range keys {
		b.leaveRoom(conn.ID(), k)
	}
}

func (b *Broadcaster) leaveRoom(connID, key string) {
	b.rooms.Update(key, func(m members, ok bool) (members, bool) {
		if !ok {
			return m, false
		}
		delete(m, connID)
		return m, len(m) > 0
	})
}

// Broadcast delivers ev to every connection currently in the room and
// returns how many accepted it.
func (b *Broadcaster) Broadcast(key string, ev models.ServerEvent) int {
	return b.deliver(key, "", ev)
}

// BroadcastExceptSender delivers ev to every room member other than sender.
func (b *Broadcaster) BroadcastExceptSender(sender models.Conn, key string, ev models.ServerEvent) int {
	return b.deliver(key, sender.ID(), ev)
}

func (b *Broadcaster) deliver(key, excludeID string, ev models.ServerEvent) int {
	targets := b.snapshot(key)
	delivered := 0
	for _, c := range targets {
		if c.ID() == excludeID {
			continue
		}
		if c.Send(ev) {
			delivered++
		} else {
			b.log.Debug("event dropped", "conn_id", c.ID(), "room", key, "event", ev.Event)
		}
	}
	return delivered
}

func (b *Broadcaster) snapshot(key string) []models.Conn {
	var out []models.Conn
	b.rooms.View(key, func(m members, ok bool) {
		if !ok {
			return
		}
		out = make([]models.Conn, 0, len(m))
		for _, c := range m {
			out = append(out, c)
		}
	})
	return out
}

// Members returns the number of connections in the room of key.
func (b *Broadcaster) Members(key string) int {
	return len(b.snapshot(key))
}

// Rooms returns the number of rooms with at least one member.
func (b *Broadcaster) Rooms() int {
	return b.rooms.Len()
}
