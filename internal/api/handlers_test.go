package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"gigchat/internal/models"
	"gigchat/internal/presence"
	"gigchat/internal/rooms"
	"gigchat/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMux(t *testing.T, vapidKey string) (*http.ServeMux, *storage.BboltStorage) {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	a := New(store, vapidKey, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.HealthHandler)
	mux.HandleFunc("POST /api/conversations", a.CreateConversationHandler)
	mux.HandleFunc("GET /api/conversations", a.ListConversationsHandler)
	mux.HandleFunc("GET /api/conversations/{jobId}/messages", a.MessagesHandler)
	mux.HandleFunc("POST /api/push/subscriptions", a.PushSubscriptionHandler)
	mux.HandleFunc("GET /api/push/key", a.PushKeyHandler)
	return mux, store
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestConversations(t *testing.T) {
	mux, store := newTestMux(t, "")
	ctx := context.Background()

	convInit := models.ConversationInit{
		ConversationRef: models.ConversationRef{JobID: "J1", ClientID: "A", WorkerID: "B"},
		JobTitle:        "Fix the roof",
		ClientName:      "Alice",
		WorkerName:      "Bob",
	}

	rec := do(t, mux, http.MethodPost, "/api/conversations", convInit)
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv models.Conversation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&conv))
	assert.Equal(t, "Fix the roof", conv.JobTitle)
	assert.Equal(t, models.UnreadCount{}, conv.UnreadCount)

	rec = do(t, mux, http.MethodPost, "/api/conversations", convInit)
	assert.Equal(t, http.StatusOK, rec.Code, "second call returns the existing conversation")

	_, err := store.InsertMessage(ctx, models.Message{ID: "m1", JobID: "J1", SenderID: "A", ReceiverID: "B", Body: "hi", CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = store.UpdateSummary(ctx, models.SummaryUpdate{JobID: "J1", SenderID: "A", ReceiverID: "B", LastMessage: "hi", LastMessageAt: time.Now()})
	require.NoError(t, err)

	rec = do(t, mux, http.MethodGet, "/api/conversations?userId=B", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []ConversationView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, 1, views[0].Unread)
	assert.Equal(t, "hi", views[0].LastMessage)

	rec = do(t, mux, http.MethodGet, "/api/conversations?userId=A", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, 0, views[0].Unread)

	rec = do(t, mux, http.MethodGet, "/api/conversations/J1/messages?clientId=A&workerId=B", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Body)

	rec = do(t, mux, http.MethodGet, "/api/conversations/J9/messages?clientId=A&workerId=B", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestBadRequests(t *testing.T) {
	mux, _ := newTestMux(t, "")

	tests := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{"missing worker", http.MethodPost, "/api/conversations", models.ConversationInit{ConversationRef: models.ConversationRef{JobID: "J1", ClientID: "A"}}},
		{"same participants", http.MethodPost, "/api/conversations", models.ConversationInit{ConversationRef: models.ConversationRef{JobID: "J1", ClientID: "A", WorkerID: "A"}}},
		{"list without user", http.MethodGet, "/api/conversations", nil},
		{"messages without pair", http.MethodGet, "/api/conversations/J1/messages?clientId=A", nil},
		{"subscription without endpoint", http.MethodPost, "/api/push/subscriptions", models.PushSubscription{UserID: "A", Auth: "x", P256dh: "y"}},
		{"subscription with bad endpoint", http.MethodPost, "/api/push/subscriptions", models.PushSubscription{UserID: "A", Endpoint: "not a url", Auth: "x", P256dh: "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp models.APIResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestPush(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		mux, _ := newTestMux(t, "")
		rec := do(t, mux, http.MethodGet, "/api/push/key", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Subscribe", func(t *testing.T) {
		mux, store := newTestMux(t, "public-key")

		rec := do(t, mux, http.MethodGet, "/api/push/key", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var key PushKeyResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&key))
		assert.Equal(t, "public-key", key.PublicKey)

		sub := models.PushSubscription{UserID: "B", Endpoint: "https://push.example.com/abc", Auth: "auth", P256dh: "key"}
		rec = do(t, mux, http.MethodPost, "/api/push/subscriptions", sub)
		require.Equal(t, http.StatusNoContent, rec.Code)

		subs, err := store.ListPushSubscriptions(context.Background(), "B")
		require.NoError(t, err)
		assert.Equal(t, []models.PushSubscription{sub}, subs)
	})
}

type failingStore struct {
	conversationStore
}

func (failingStore) ListConversations(context.Context, string) ([]models.Conversation, error) {
	return nil, errors.New("database is closed")
}

func TestStoreFailure(t *testing.T) {
	a := New(failingStore{}, "", nil)
	rec := httptest.NewRecorder()
	a.ListConversationsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/conversations?userId=A", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database is closed")
}

func TestHealth(t *testing.T) {
	mux, _ := newTestMux(t, "")
	rec := do(t, mux, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type adminConn struct{ id string }

func (c adminConn) ID() string                      { return c.id }
func (c adminConn) Send(ev models.ServerEvent) bool { return true }

func TestAdmin(t *testing.T) {
	reg := presence.NewRegistry(nil)
	b := rooms.NewBroadcaster(nil)
	require.NoError(t, reg.Register("B", "Bob", models.RoleWorker, adminConn{id: "c2"}))
	require.NoError(t, reg.Register("A", "Alice", models.RoleClient, adminConn{id: "c1"}))
	require.NoError(t, b.Join(adminConn{id: "c1"}, "J1"))

	h := NewAdminHandler(reg, b)

	rec := httptest.NewRecorder()
	h.StatsHandler(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	var stats StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, StatsResponse{Online: 2, Rooms: 1}, stats)

	rec = httptest.NewRecorder()
	h.PresenceHandler(rec, httptest.NewRequest(http.MethodGet, "/admin/presence", nil))
	var entries []presence.Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].UserID)
	assert.Equal(t, models.RoleWorker, entries[1].Role)
}
