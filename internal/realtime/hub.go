package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Notifier pushes offline-safe notifications out of the process. The Redis
// implementation is the default; a multi-process deployment swaps in a shared
// pub/sub registry behind this same interface.
type Notifier interface {
	Publish(ctx context.Context, userID string, payload []byte) error
}

type Client struct {
	ID     string
	UserID uuid.UUID
	Role   string
	Conn   *WebSocketConn
	Send   chan []byte

	rooms   map[uuid.UUID]struct{} // guarded by hub.mu
	dropped bool                   // guarded by hub.mu; set once Send is closed
}

func NewClient(userID uuid.UUID, role string, conn *WebSocketConn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Role:   role,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		rooms:  make(map[uuid.UUID]struct{}),
	}
}

// Hub holds every live connection, the presence registry and the per-
// conversation rooms. Presence is process-local and rebuilt empty on restart;
// all users appear offline until they reconnect.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	presence map[uuid.UUID]*Client // one entry per user, last-connected wins
	rooms    map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	notifier Notifier
}

func NewHub(notifier Notifier) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		presence:   make(map[uuid.UUID]*Client),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		notifier:   notifier,
	}
}

func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
			h.broadcastPresence()

		case client := <-h.unregister:
			h.removeClient(client)
			h.broadcastPresence()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.presence[client.UserID]; ok {
		// Last-connected wins; drop the stale connection.
		h.dropLocked(old)
	}
	h.clients[client.ID] = client
	h.presence[client.UserID] = client
	log.Printf("realtime: client %s registered (user %s)", client.ID, client.UserID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	left := h.dropLocked(client)
	h.mu.Unlock()

	// Tell the rooms this connection was in that the user departed.
	for _, roomID := range left {
		h.BroadcastRoom(roomID, Envelope{
			Type: EventMemberLeft,
			Data: map[string]string{
				"conversation_id": roomID.String(),
				"user_id":         client.UserID.String(),
			},
		}, nil)
	}
	log.Printf("realtime: client %s unregistered (user %s)", client.ID, client.UserID)
}

// dropLocked removes the client from every map and returns the rooms it was
// in. Caller holds h.mu.
func (h *Hub) dropLocked(client *Client) []uuid.UUID {
	if _, ok := h.clients[client.ID]; !ok {
		return nil
	}
	delete(h.clients, client.ID)
	if cur, ok := h.presence[client.UserID]; ok && cur == client {
		delete(h.presence, client.UserID)
	}

	left := make([]uuid.UUID, 0, len(client.rooms))
	for roomID := range client.rooms {
		left = append(left, roomID)
		if set, ok := h.rooms[roomID]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	client.rooms = make(map[uuid.UUID]struct{})
	client.dropped = true
	close(client.Send)
	// Close the socket too so the connection's read loop terminates instead
	// of feeding events from a connection the hub no longer tracks.
	if client.Conn != nil {
		_ = client.Conn.Close()
	}
	return left
}

// JoinRoom adds the connection to a conversation's room. Idempotent; existing
// occupants get a membership notice.
func (h *Hub) JoinRoom(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	if _, ok := client.rooms[conversationID]; ok {
		h.mu.Unlock()
		return
	}
	set, ok := h.rooms[conversationID]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[conversationID] = set
	}
	set[client] = struct{}{}
	client.rooms[conversationID] = struct{}{}
	h.mu.Unlock()

	h.BroadcastRoom(conversationID, Envelope{
		Type: EventMemberJoined,
		Data: map[string]string{
			"conversation_id": conversationID.String(),
			"user_id":         client.UserID.String(),
		},
	}, client)
}

// LeaveRoom removes the connection from a room. Idempotent.
func (h *Hub) LeaveRoom(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	if _, ok := client.rooms[conversationID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(client.rooms, conversationID)
	if set, ok := h.rooms[conversationID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	h.mu.Unlock()

	h.BroadcastRoom(conversationID, Envelope{
		Type: EventMemberLeft,
		Data: map[string]string{
			"conversation_id": conversationID.String(),
			"user_id":         client.UserID.String(),
		},
	}, client)
}

// BroadcastRoom fans a payload out to every room occupant except the excluded
// connection.
func (h *Hub) BroadcastRoom(conversationID uuid.UUID, v interface{}, except *Client) {
	payload := marshal(v)
	if payload == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[conversationID] {
		if client == except {
			continue
		}
		send(client, payload)
	}
}

// SendToUser pushes a payload to the user's live connection if any.
// Returns false when the user is offline; that is not an error.
func (h *Hub) SendToUser(userID uuid.UUID, v interface{}) bool {
	payload := marshal(v)
	if payload == nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.presence[userID]
	if !ok {
		return false
	}
	send(client, payload)
	return true
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.presence[userID]
	return ok
}

// OnlineUserIDs snapshots the currently connected users.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.presence))
	for id := range h.presence {
		ids = append(ids, id.String())
	}
	return ids
}

// broadcastPresence sends the full online set to every connection. Full
// resend is acceptable at this scale; diffing is a later hardening.
func (h *Hub) broadcastPresence() {
	payload := marshal(Envelope{
		Type: EventOnlineUsers,
		Data: map[string]interface{}{"users": h.OnlineUserIDs()},
	})
	if payload == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		send(client, payload)
	}
}

// Notify publishes an offline-safe notification for the user.
func (h *Hub) Notify(ctx context.Context, userID uuid.UUID, v interface{}) {
	if h.notifier == nil {
		return
	}
	payload := marshal(v)
	if payload == nil {
		return
	}
	if err := h.notifier.Publish(ctx, userID.String(), payload); err != nil {
		log.Printf("realtime: notify user %s: %v", userID, err)
	}
}

// SendError reports a handler failure back to the originating connection only.
func (h *Hub) SendError(client *Client, event string, message string) {
	payload := marshal(Envelope{
		Type: EventError,
		Data: ErrorPayload{Event: event, Message: message},
	})
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	send(client, payload)
}

func marshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("realtime: marshal payload: %v", err)
		return nil
	}
	return b
}

// send delivers to one client. Caller holds h.mu, which also guards the
// dropped flag; a dropped client's Send channel is closed and must not be
// written to.
func send(client *Client, payload []byte) {
	if client.dropped {
		return
	}
	select {
	case client.Send <- payload:
	default:
		// Slow consumer; drop rather than block the hub.
	}
}
