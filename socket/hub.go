package socket

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"docshare/internal/document/model"
	"docshare/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	UpdateType         = "UPDATE"          // Document title/content changed
	DeleteType         = "DELETE"          // Document removed; the room is closed afterwards
	PresenceUpdateType = "PRESENCE_UPDATE" // A user joined or left
	AccessRevokedType  = "ACCESS_REVOKED"  // Sent to a user just before they are disconnected
)

type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"document_id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

type UserStatus struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Hub fans document changes out to the websocket clients watching each document.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.Mutex
	done       chan struct{}
}

type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	DocID    string
	UserID   string
	JoinedAt time.Time
	Send     chan []byte
}

func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until ctx is cancelled, then closes every room.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, room := range h.Rooms {
				for client := range room {
					h.removeClientLocked(client)
				}
			}
			h.mu.Unlock()
			logger.Sugar.Info("Hub stopped, all rooms closed")
			return

		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
			}
			h.Rooms[client.DocID][client] = true
			h.broadcastPresenceLocked(client.DocID)
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if h.removeClientLocked(client) {
				h.broadcastPresenceLocked(client.DocID)
			}
			h.mu.Unlock()

		case msg := <-h.Broadcast:
			h.mu.Lock()
			h.deliverLocked(msg)
			h.mu.Unlock()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// register and unregister give up once the hub has stopped.
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// DocumentUpdated sends the new document state to everyone watching it except the editor.
func (h *Hub) DocumentUpdated(doc *model.Document, userID string) {
	payload, err := json.Marshal(doc)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling document %s: %v", doc.ID, err)
		return
	}
	h.publish(WSMessage{Type: UpdateType, DocID: doc.ID, UserID: userID, Payload: payload})
}

// DocumentDeleted tells every watcher that the document is gone and closes the room.
func (h *Hub) DocumentDeleted(docID, userID string) {
	h.publish(WSMessage{Type: DeleteType, DocID: docID, UserID: userID})
}

// AccessRevoked disconnects every client userID has open on docID. The clients are out of
// the room when it returns, so no event published afterwards reaches them.
func (h *Hub) AccessRevoked(docID, userID string) {
	notice, err := json.Marshal(WSMessage{Type: AccessRevokedType, DocID: docID, UserID: userID})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling revoke notice: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for client := range h.Rooms[docID] {
		if client.UserID != userID {
			continue
		}
		if notice != nil {
			select {
			case client.Send <- notice:
			default:
			}
		}
		h.removeClientLocked(client)
		removed++
	}
	if removed == 0 {
		return
	}

	logger.Sugar.Infof("Disconnected %d client(s) of user %s from doc %s", removed, userID, docID)
	if _, ok := h.Rooms[docID]; ok {
		h.broadcastPresenceLocked(docID)
	}
}

// publish never blocks the request path; events are dropped when the queue is full.
func (h *Hub) publish(msg WSMessage) {
	select {
	case h.Broadcast <- msg:
	default:
		logger.Sugar.Warnf("Hub queue full, dropping %s for doc %s", msg.Type, msg.DocID)
	}
}

func (h *Hub) deliverLocked(msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
		return
	}

	for client := range h.Rooms[msg.DocID] {
		// Don't echo an edit back to the user who made it; deletes reach everyone.
		if msg.Type != DeleteType && client.UserID == msg.UserID {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.UserID)
			h.removeClientLocked(client)
		}
	}

	if msg.Type == DeleteType {
		for client := range h.Rooms[msg.DocID] {
			h.removeClientLocked(client)
		}
		logger.Sugar.Infof("Closed room for deleted document: %s", msg.DocID)
	}
}

// removeClientLocked reports whether the client was still registered and its room still exists.
func (h *Hub) removeClientLocked(client *Client) bool {
	room, ok := h.Rooms[client.DocID]
	if !ok || !room[client] {
		return false
	}
	delete(room, client)
	close(client.Send)

	if len(room) == 0 {
		delete(h.Rooms, client.DocID)
		return false
	}
	return true
}

func (h *Hub) broadcastPresenceLocked(docID string) {
	seen := make(map[string]UserStatus)
	for client := range h.Rooms[docID] {
		if s, ok := seen[client.UserID]; !ok || client.JoinedAt.Before(s.JoinedAt) {
			seen[client.UserID] = UserStatus{UserID: client.UserID, JoinedAt: client.JoinedAt}
		}
	}
	statuses := make([]UserStatus, 0, len(seen))
	for _, s := range seen {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].UserID < statuses[j].UserID })

	payload, err := json.Marshal(statuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	msg, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, DocID: docID, Payload: payload})

	for client := range h.Rooms[docID] {
		select {
		case client.Send <- msg:
		default:
			// The pumps will notice an unresponsive client.
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.UserID)
		}
	}
}
