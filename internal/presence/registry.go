package presence

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gigchat/internal/content"
	"gigchat/internal/models"
	"gigchat/internal/shard"
)

// Entry is the presence record of one connected user.
type Entry struct {
	UserID      string      `json:"userId"`
	DisplayName string      `json:"displayName"`
	Role        models.Role `json:"role"`
	Conn        models.Conn `json:"-"`
	LastActive  time.Time   `json:"lastActive"`
}

// Registry maps user ids to their live connection. At most one entry exists
// per user; a later Register replaces the earlier one.
type Registry struct {
	entries *shard.Map[Entry]
	log     *slog.Logger
	now     func() time.Time
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		entries: shard.New[Entry](shard.DefaultShards),
		log:     log,
		now:     time.Now,
	}
}

func (r *Registry) Register(userID, displayName string, role models.Role, conn models.Conn) error {
	name := content.SanitizeName(displayName, models.MaxNameLength)
	if userID == "" || name == "" || role == "" {
		return fmt.Errorf("%w: userId, userName and role are required", models.ErrInvalidInput)
	}
	if conn == nil {
		return fmt.Errorf("%w: connection is required", models.ErrInvalidInput)
	}

	entry := Entry{
		UserID:      userID,
		DisplayName: name,
		Role:        role,
		Conn:        conn,
		LastActive:  r.now(),
	}

	r.entries.Update(userID, func(prev Entry, ok bool) (Entry, bool) {
		// The superseded connection stays open, it just stops being reachable.
		if ok && prev.Conn.ID() != conn.ID() {
			r.log.Info("presence superseded", "user_id", userID, "old_conn", prev.Conn.ID(), "new_conn", conn.ID())
		}
		return entry, true
	})
	return nil
}

// Lookup returns the presence entry of userID. A miss means the user is offline.
func (r *Registry) Lookup(userID string) (Entry, bool) {
	return r.entries.Get(userID)
}

// Unregister removes the entry of userID. Removing an absent user is a no-op.
func (r *Registry) Unregister(userID string) {
	r.entries.Delete(userID)
}

// Release removes the entry of userID only while it is still bound to connID.
func (r *Registry) Release(userID, connID string) bool {
	released := false
	r.entries.Update(userID, func(cur Entry, ok bool) (Entry, bool) {
		if !ok {
			return cur, false
		}
		if cur.Conn.ID() != connID {
			return cur, true
		}
		released = true
		return cur, false
	})
	return released
}

// Touch refreshes the last activity time of a user bound to connID.
func (r *Registry) Touch(userID, connID string) {
	r.entries.Update(userID, func(cur Entry, ok bool) (Entry, bool) {
		if !ok {
			return cur, false
		}
		if cur.Conn.ID() == connID {
			cur.LastActive = r.now()
		}
		return cur, true
	})
}

func (r *Registry) Len() int {
	return r.entries.Len()
}

// Snapshot lists the currently registered users.
func (r *Registry) Snapshot() []Entry {
	snap := r.entries.Snapshot()
	out := make([]Entry, 0, len(snap))
	for _, e := range snap {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out
}
