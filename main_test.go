package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"gigchat/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wireEvent struct {
	Event models.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event models.EventName, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Frame{Event: event, Data: raw}))
}

// expect reads frames until one named event arrives.
func expect(t *testing.T, conn *websocket.Conn, event models.EventName, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev wireEvent
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", event)
		if ev.Event == event {
			if v != nil {
				require.NoError(t, json.Unmarshal(ev.Data, v))
			}
			return
		}
	}
}

func TestIntegration(t *testing.T) {
	adminAddr := "127.0.0.1:8888"
	apiAddr := "127.0.0.1:8887"

	t.Chdir(t.TempDir())
	t.Setenv("GIGCHAT_DB", filepath.Join(t.TempDir(), "integration_test.db"))
	t.Setenv("ADMIN_ADDR", adminAddr)
	t.Setenv("API_ADDR", apiAddr)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("VAPID_PUBLIC_KEY", "")
	t.Setenv("VAPID_PRIVATE_KEY", "")

	// Start server in background
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, nil)
	}()
	defer func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Server did not shut down")
		}
	}()

	waitForServer(t, fmt.Sprintf("http://%s/healthz", apiAddr), 20)

	// Step 1: the marketplace opens the conversation.
	body, _ := json.Marshal(models.ConversationInit{
		ConversationRef: models.ConversationRef{JobID: "J1", ClientID: "A", WorkerID: "B"},
		JobTitle:        "Paint the fence",
	})
	resp, err := http.Post(fmt.Sprintf("http://%s/api/conversations", apiAddr), "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Step 2: both participants connect and join the room.
	wsURL := fmt.Sprintf("ws://%s/ws", apiAddr)
	alice := dial(t, wsURL)
	bob := dial(t, wsURL)

	emit(t, alice, models.EventUserJoin, models.UserJoin{UserID: "A", UserName: "Alice", Role: models.RoleClient})
	emit(t, alice, models.EventChatJoin, models.ChatJoin{ConversationKey: "J1"})
	expect(t, alice, models.EventChatJoined, nil)

	emit(t, bob, models.EventUserJoin, models.UserJoin{UserID: "B", UserName: "Bob", Role: models.RoleWorker})
	emit(t, bob, models.EventChatJoin, models.ChatJoin{ConversationKey: "J1"})
	expect(t, bob, models.EventChatJoined, nil)

	// Step 3: Alice writes, Bob receives.
	emit(t, alice, models.EventMessageSend, models.MessageSend{
		ConversationKey: "J1",
		SenderID:        "A",
		SenderName:      "Alice",
		SenderRole:      models.RoleClient,
		ReceiverID:      "B",
		Body:            "Hello",
		Kind:            models.MessageKindText,
	})
	var msg models.Message
	expect(t, bob, models.EventMessageReceive, &msg)
	require.Equal(t, "Hello", msg.Body)
	require.False(t, msg.Read)

	var note models.Notification
	expect(t, bob, models.EventNotificationNew, &note)
	require.Equal(t, "Alice", note.SenderName)

	var convs []struct {
		Unread int `json:"unread"`
	}
	getJSON(t, fmt.Sprintf("http://%s/api/conversations?userId=B", apiAddr), &convs)
	require.Len(t, convs, 1)
	require.Equal(t, 1, convs[0].Unread)

	// Step 4: Bob reads, Alice sees the receipt.
	emit(t, bob, models.EventMessageRead, models.MessageRead{ConversationKey: "J1", ReaderID: "B"})
	var marked models.MarkedRead
	expect(t, alice, models.EventMessagesMarkedRead, &marked)
	require.Equal(t, "B", marked.ReaderID)

	getJSON(t, fmt.Sprintf("http://%s/api/conversations?userId=B", apiAddr), &convs)
	require.Equal(t, 0, convs[0].Unread)

	var msgs []models.Message
	getJSON(t, fmt.Sprintf("http://%s/api/conversations/J1/messages?clientId=A&workerId=B", apiAddr), &msgs)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Read)

	// Step 5: invalid sends are reported to the sender only.
	emit(t, alice, models.EventMessageSend, models.MessageSend{ConversationKey: "J1", SenderID: "A", ReceiverID: "B"})
	var errPayload models.ErrorPayload
	expect(t, alice, models.EventError, &errPayload)
	require.Contains(t, errPayload.Message, "invalid input")

	// Step 6: the admin API sees both users.
	var stats struct {
		Online int `json:"online"`
		Rooms  int `json:"rooms"`
	}
	getJSON(t, fmt.Sprintf("http://%s/admin/stats", adminAddr), &stats)
	require.Equal(t, 2, stats.Online)
	require.Equal(t, 1, stats.Rooms)

	// Step 7: without VAPID keys there is no notifier and no push key.
	resp, err = http.Get(fmt.Sprintf("http://%s/api/push/key", apiAddr))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func waitForServer(t *testing.T, urlStr string, retries int) {
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for i := 0; i < retries; i++ {
		resp, err := client.Get(urlStr)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server failed to start at %s after %d retries", urlStr, retries)
}
