package api

import (
	"net/http"

	"gigchat/internal/presence"
	"gigchat/internal/rooms"
)

type AdminHandler struct {
	presence *presence.Registry
	rooms    *rooms.Broadcaster
}

func NewAdminHandler(registry *presence.Registry, broadcaster *rooms.Broadcaster) *AdminHandler {
	return &AdminHandler{presence: registry, rooms: broadcaster}
}

type StatsResponse struct {
	Online int `json:"online"`
	Rooms  int `json:"rooms"`
}

// PresenceHandler lists online users ordered by id.
func (h *AdminHandler) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.presence.Snapshot())
}

func (h *AdminHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Online: h.presence.Len(),
		Rooms:  h.rooms.Rooms(),
	})
}
