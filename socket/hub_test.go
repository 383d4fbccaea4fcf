package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docshare/internal/document/model"
	"docshare/internal/document/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to read messages from a WebSocket connection with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	var msg WSMessage
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	require.NoError(t, json.Unmarshal(p, &msg), "Failed to unmarshal WSMessage JSON")
	return msg
}

func presence(t *testing.T, msg WSMessage) []string {
	t.Helper()
	require.Equal(t, PresenceUpdateType, msg.Type)
	var statuses []UserStatus
	require.NoError(t, json.Unmarshal(msg.Payload, &statuses))
	var ids []string
	for _, s := range statuses {
		ids = append(ids, s.UserID)
	}
	return ids
}

// allowOnly grants access to one document for the listed users.
func allowOnly(docID string, users ...string) Authorizer {
	return func(ctx context.Context, id, userID string) error {
		if userID == "ghost" {
			return service.ErrUserNotFound
		}
		if id != docID {
			return service.ErrForbidden
		}
		for _, u := range users {
			if u == userID {
				return nil
			}
		}
		return service.ErrForbidden
	}
}

func newTestServer(t *testing.T, hub *Hub, authorize Authorizer) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, authorize, w, r, r.URL.Query().Get("userId"))
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, wsURL, docID, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?docId="+docID+"&userId="+userID, nil)
	require.NoError(t, err, "%s failed to connect", userID)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubIntegration(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	wsURL := newTestServer(t, hub, allowOnly("doc-1", "alice", "bob", "carol"))

	bob := dial(t, wsURL, "doc-1", "bob")
	assert.Equal(t, []string{"bob"}, presence(t, readMessage(t, bob)))

	carol := dial(t, wsURL, "doc-1", "carol")
	assert.Equal(t, []string{"bob", "carol"}, presence(t, readMessage(t, bob)))
	assert.Equal(t, []string{"bob", "carol"}, presence(t, readMessage(t, carol)))

	// An edit by carol reaches bob but is not echoed back to carol.
	doc := &model.Document{ID: "doc-1", Title: "v2", Content: "hello", OwnerID: "alice", Collaborators: []string{"bob", "carol"}}
	hub.DocumentUpdated(doc, "carol")

	update := readMessage(t, bob)
	assert.Equal(t, UpdateType, update.Type)
	assert.Equal(t, "carol", update.UserID)
	var got model.Document
	require.NoError(t, json.Unmarshal(update.Payload, &got))
	assert.Equal(t, "v2", got.Title)
	assert.Equal(t, "hello", got.Content)

	// Deleting reaches everyone, then the room closes.
	hub.DocumentDeleted("doc-1", "alice")
	for _, conn := range []*websocket.Conn{bob, carol} {
		msg := readMessage(t, conn)
		assert.Equal(t, DeleteType, msg.Type)
		assert.Equal(t, "doc-1", msg.DocID)

		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)
	}

	assert.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.Rooms) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestServeWsRefusesWithoutAccess(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	wsURL := newTestServer(t, hub, allowOnly("doc-1", "alice"))

	cases := []struct {
		docID, userID string
		status        int
	}{
		{"doc-1", "mallory", http.StatusForbidden},
		{"missing", "mallory", http.StatusForbidden},
		{"doc-1", "ghost", http.StatusUnauthorized},
		{"", "alice", http.StatusBadRequest},
	}
	for _, tc := range cases {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws?docId="+tc.docID+"&userId="+tc.userID, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, tc.status, resp.StatusCode, "doc=%q user=%q", tc.docID, tc.userID)
	}
}

func TestLeavingUpdatesPresence(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	wsURL := newTestServer(t, hub, allowOnly("doc-1", "alice", "bob"))

	alice := dial(t, wsURL, "doc-1", "alice")
	readMessage(t, alice)
	bob := dial(t, wsURL, "doc-1", "bob")
	readMessage(t, alice)
	readMessage(t, bob)

	bob.Close()
	assert.Equal(t, []string{"alice"}, presence(t, readMessage(t, alice)))
}

func TestPublishDoesNotBlockWithoutRunLoop(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.Broadcast)+10; i++ {
			hub.DocumentDeleted("doc", "alice")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestAccessRevokedDisconnectsUser(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	wsURL := newTestServer(t, hub, allowOnly("doc-1", "alice", "bob", "carol"))

	bob := dial(t, wsURL, "doc-1", "bob")
	readMessage(t, bob)
	carol := dial(t, wsURL, "doc-1", "carol")
	readMessage(t, bob)
	readMessage(t, carol)

	hub.AccessRevoked("doc-1", "bob")

	notice := readMessage(t, bob)
	assert.Equal(t, AccessRevokedType, notice.Type)
	assert.Equal(t, "bob", notice.UserID)
	bob.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := bob.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)

	assert.Equal(t, []string{"carol"}, presence(t, readMessage(t, carol)))

	// Later edits reach the remaining viewers only.
	hub.DocumentUpdated(&model.Document{ID: "doc-1", Content: "after"}, "alice")
	update := readMessage(t, carol)
	assert.Equal(t, UpdateType, update.Type)

	hub.mu.Lock()
	defer hub.mu.Unlock()
	for client := range hub.Rooms["doc-1"] {
		assert.NotEqual(t, "bob", client.UserID)
	}
}

func TestAccessRevokedForAbsentUserIsQuiet(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	wsURL := newTestServer(t, hub, allowOnly("doc-1", "alice"))

	alice := dial(t, wsURL, "doc-1", "alice")
	readMessage(t, alice)

	hub.AccessRevoked("doc-1", "bob")
	hub.AccessRevoked("doc-2", "alice")

	hub.DocumentDeleted("doc-1", "bob")
	assert.Equal(t, DeleteType, readMessage(t, alice).Type)
}

func TestRunClosesRoomsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)
	wsURL := newTestServer(t, hub, allowOnly("doc-1", "alice"))

	alice := dial(t, wsURL, "doc-1", "alice")
	readMessage(t, alice)

	cancel()
	select {
	case <-hub.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	alice.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := alice.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)
	assert.Empty(t, hub.Rooms)

	// Joins after shutdown are turned away instead of hanging.
	late := dial(t, wsURL, "doc-1", "alice")
	late.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "expected going away, got %v", err)
}
