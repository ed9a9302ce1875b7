package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"gigchat/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

type conversationStore interface {
	GetOrCreateConversation(ctx context.Context, init models.ConversationInit) (models.Conversation, bool, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, ref models.ConversationRef) ([]models.Message, error)
	UpsertPushSubscription(ctx context.Context, sub models.PushSubscription) error
}

// API serves the REST endpoints page loads use to read the conversation store.
type API struct {
	store    conversationStore
	vapidKey string
	log      *slog.Logger
}

// New returns the REST handlers. An empty vapidPublicKey disables the push
// key endpoint.
func New(store conversationStore, vapidPublicKey string, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{store: store, vapidKey: vapidPublicKey, log: log}
}

// ConversationView is a conversation as listed for one of its participants.
type ConversationView struct {
	models.Conversation
	Unread int `json:"unread"`
}

type PushKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (a *API) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ConversationInit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "jobId, clientId and workerId are required")
		return
	}

	conv, created, err := a.store.GetOrCreateConversation(r.Context(), req)
	if err != nil {
		a.fail(w, "create conversation", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

func (a *API) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	convs, err := a.store.ListConversations(r.Context(), userID)
	if err != nil {
		a.fail(w, "list conversations", err)
		return
	}

	views := lo.Map(convs, func(c models.Conversation, _ int) ConversationView {
		role, _ := c.RoleOf(userID)
		return ConversationView{Conversation: c, Unread: c.UnreadCount.Get(role)}
	})
	writeJSON(w, http.StatusOK, views)
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	ref := models.ConversationRef{
		JobID:    r.PathValue("jobId"),
		ClientID: r.URL.Query().Get("clientId"),
		WorkerID: r.URL.Query().Get("workerId"),
	}
	if err := validate.Struct(ref); err != nil {
		writeError(w, http.StatusBadRequest, "clientId and workerId are required")
		return
	}

	msgs, err := a.store.ListMessages(r.Context(), ref)
	if err != nil {
		a.fail(w, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) PushSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var sub models.PushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(sub); err != nil {
		writeError(w, http.StatusBadRequest, "userId, endpoint, auth and p256dh are required")
		return
	}

	if err := a.store.UpsertPushSubscription(r.Context(), sub); err != nil {
		a.fail(w, "store push subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) PushKeyHandler(w http.ResponseWriter, r *http.Request) {
	if a.vapidKey == "" {
		writeError(w, http.StatusNotFound, "Web push is disabled")
		return
	}
	writeJSON(w, http.StatusOK, PushKeyResponse{PublicKey: a.vapidKey})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "ok"})
}

// fail maps a store error to a response.
func (a *API) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		a.log.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.APIResponse{Success: false, Message: msg})
}
