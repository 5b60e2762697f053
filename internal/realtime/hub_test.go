package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func newTestClient(userID uuid.UUID) *Client {
	return NewClient(userID, "student", nil)
}

func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("unmarshal envelope: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestPresenceLastConnectionWins(t *testing.T) {
	hub := NewHub(nil)
	userID := uuid.New()

	first := newTestClient(userID)
	second := newTestClient(userID)

	hub.addClient(first)
	hub.addClient(second)

	if !hub.IsOnline(userID) {
		t.Fatal("user should be online")
	}
	if _, open := <-first.Send; open {
		t.Fatal("stale connection's send channel should be closed")
	}

	if !hub.SendToUser(userID, Envelope{Type: EventNotification}) {
		t.Fatal("SendToUser should reach the newest connection")
	}
	if got := drain(t, second); len(got) != 1 || got[0].Type != EventNotification {
		t.Fatalf("expected one notification on the new connection, got %+v", got)
	}
}

func TestSendErrorToDroppedClientIsHarmless(t *testing.T) {
	hub := NewHub(nil)
	userID := uuid.New()

	stale := newTestClient(userID)
	hub.addClient(stale)
	hub.addClient(newTestClient(userID))

	// The stale connection's read loop may still be running and report
	// failures after the hub dropped it; that must not reach the closed
	// channel.
	hub.SendError(stale, "send_message", "malformed payload")
	hub.SendToUser(userID, Envelope{Type: EventNotification})

	if got := drain(t, stale); len(got) != 0 {
		t.Fatalf("dropped client must receive nothing, got %+v", got)
	}
}

func TestSendToUserOfflineIsNotAnError(t *testing.T) {
	hub := NewHub(nil)
	if hub.SendToUser(uuid.New(), Envelope{Type: EventNotification}) {
		t.Fatal("expected false for an offline user")
	}
}

func TestJoinRoomNotifiesExistingOccupantsOnly(t *testing.T) {
	hub := NewHub(nil)
	roomID := uuid.New()

	a := newTestClient(uuid.New())
	b := newTestClient(uuid.New())
	hub.addClient(a)
	hub.addClient(b)

	hub.JoinRoom(a, roomID)
	if got := drain(t, a); len(got) != 0 {
		t.Fatalf("first joiner should get no membership notice, got %+v", got)
	}

	hub.JoinRoom(b, roomID)
	got := drain(t, a)
	if len(got) != 1 || got[0].Type != EventMemberJoined {
		t.Fatalf("expected member_joined for existing occupant, got %+v", got)
	}
	if got := drain(t, b); len(got) != 0 {
		t.Fatalf("joiner should not receive its own notice, got %+v", got)
	}

	// Joining again is a no-op.
	hub.JoinRoom(b, roomID)
	if got := drain(t, a); len(got) != 0 {
		t.Fatalf("idempotent join should not re-notify, got %+v", got)
	}
}

func TestBroadcastRoomExcludesSender(t *testing.T) {
	hub := NewHub(nil)
	roomID := uuid.New()

	a := newTestClient(uuid.New())
	b := newTestClient(uuid.New())
	hub.addClient(a)
	hub.addClient(b)
	hub.JoinRoom(a, roomID)
	hub.JoinRoom(b, roomID)
	drain(t, a)
	drain(t, b)

	hub.BroadcastRoom(roomID, Envelope{Type: EventTyping}, a)

	if got := drain(t, a); len(got) != 0 {
		t.Fatalf("excluded client should receive nothing, got %+v", got)
	}
	if got := drain(t, b); len(got) != 1 || got[0].Type != EventTyping {
		t.Fatalf("expected typing event for the other occupant, got %+v", got)
	}
}

func TestRemoveClientLeavesRoomsAndPresence(t *testing.T) {
	hub := NewHub(nil)
	roomID := uuid.New()

	a := newTestClient(uuid.New())
	b := newTestClient(uuid.New())
	hub.addClient(a)
	hub.addClient(b)
	hub.JoinRoom(a, roomID)
	hub.JoinRoom(b, roomID)
	drain(t, a)
	drain(t, b)

	hub.removeClient(a)

	if hub.IsOnline(a.UserID) {
		t.Fatal("removed client's user should be offline")
	}
	got := drain(t, b)
	if len(got) != 1 || got[0].Type != EventMemberLeft {
		t.Fatalf("expected member_left notice for remaining occupant, got %+v", got)
	}

	// Removing twice must be harmless.
	hub.removeClient(a)
}

func TestOnlineUserIDsAndPresenceBroadcast(t *testing.T) {
	hub := NewHub(nil)

	a := newTestClient(uuid.New())
	b := newTestClient(uuid.New())
	hub.addClient(a)
	hub.addClient(b)

	ids := hub.OnlineUserIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(ids))
	}

	hub.broadcastPresence()
	for _, client := range []*Client{a, b} {
		got := drain(t, client)
		if len(got) != 1 || got[0].Type != EventOnlineUsers {
			t.Fatalf("expected online_users broadcast, got %+v", got)
		}
	}
}
