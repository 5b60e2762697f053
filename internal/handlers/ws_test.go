package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink-backend/internal/chat"
	"github.com/tutorlink/tutorlink-backend/internal/models"
	"github.com/tutorlink/tutorlink-backend/internal/realtime"
)

func (s *stubChatService) OwnerUserID(_ context.Context, ref chat.ParticipantRef) (uuid.UUID, error) {
	return ref.ID, nil
}

func drainClient(t *testing.T, c *realtime.Client) []realtime.Envelope {
	t.Helper()
	var out []realtime.Envelope
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return out
			}
			var env realtime.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("unmarshal envelope: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func typingEvent(conversationID uuid.UUID) realtime.Event {
	return realtime.Event{
		Type: realtime.EventTyping,
		Data: json.RawMessage(fmt.Sprintf(`{"conversation_id":%q,"is_typing":true}`, conversationID)),
	}
}

func TestTypingFromNonParticipantIsRejected(t *testing.T) {
	hub := realtime.NewHub(nil)
	convID := uuid.New()

	occupant := realtime.NewClient(uuid.New(), "student", nil)
	hub.JoinRoom(occupant, convID)

	service := &stubChatService{getErr: chat.ErrNotFound}
	h := NewWSHandler(hub, service, service, "secret")

	outsider := realtime.NewClient(uuid.New(), "student", nil)
	ref := chat.ParticipantRef{ID: outsider.UserID, Kind: models.KindStudent}

	h.dispatch(context.Background(), outsider, ref, typingEvent(convID))

	got := drainClient(t, outsider)
	if len(got) != 1 || got[0].Type != realtime.EventError {
		t.Fatalf("expected error event for the outsider, got %+v", got)
	}
	if got := drainClient(t, occupant); len(got) != 0 {
		t.Fatalf("room must see nothing from a non-participant, got %+v", got)
	}
}

func TestTypingFromParticipantReachesRoom(t *testing.T) {
	hub := realtime.NewHub(nil)
	convID := uuid.New()

	occupant := realtime.NewClient(uuid.New(), "teacher", nil)
	hub.JoinRoom(occupant, convID)

	sender := realtime.NewClient(uuid.New(), "student", nil)
	ref := chat.ParticipantRef{ID: sender.UserID, Kind: models.KindStudent}

	service := &stubChatService{
		getConv: &models.Conversation{ID: convID, StudentID: sender.UserID},
	}
	h := NewWSHandler(hub, service, service, "secret")

	h.dispatch(context.Background(), sender, ref, typingEvent(convID))

	got := drainClient(t, occupant)
	if len(got) != 1 || got[0].Type != realtime.EventTyping {
		t.Fatalf("expected typing event in the room, got %+v", got)
	}
	if got := drainClient(t, sender); len(got) != 0 {
		t.Fatalf("sender must not receive its own typing event, got %+v", got)
	}
}
