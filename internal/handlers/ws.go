package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink-backend/internal/chat"
	"github.com/tutorlink/tutorlink-backend/internal/models"
	"github.com/tutorlink/tutorlink-backend/internal/realtime"
	"github.com/tutorlink/tutorlink-backend/internal/utils"
)

// GatewayConversationAPI extends the conversation surface with the owner
// lookup the gateway needs for presence-keyed notifications.
type GatewayConversationAPI interface {
	ConversationAPI
	OwnerUserID(ctx context.Context, ref chat.ParticipantRef) (uuid.UUID, error)
}

// WSHandler is the realtime gateway: it authenticates connections, manages
// room membership and fans chat events out, persisting through the chat
// services.
type WSHandler struct {
	Hub           *realtime.Hub
	Conversations GatewayConversationAPI
	Messages      MessageAPI
	JWTSecret     string
}

func NewWSHandler(hub *realtime.Hub, conversations GatewayConversationAPI, messages MessageAPI, jwtSecret string) *WSHandler {
	return &WSHandler{Hub: hub, Conversations: conversations, Messages: messages, JWTSecret: jwtSecret}
}

// Handle runs one connection. Authentication happens before any registration;
// a rejected connection never receives room-scoped data.
func (h *WSHandler) Handle(c *websocket.Conn) {
	claims, err := utils.ParseJWT(h.JWTSecret, c.Query("token"))
	if err != nil {
		writeClosed(c, realtime.Envelope{
			Type: realtime.EventError,
			Data: realtime.ErrorPayload{Message: "authentication failed"},
		})
		return
	}

	userUUID, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeClosed(c, realtime.Envelope{
			Type: realtime.EventError,
			Data: realtime.ErrorPayload{Message: "authentication failed"},
		})
		return
	}

	ctx := context.Background()
	ref, err := h.Conversations.Resolve(ctx, userUUID, claims.Role)
	if err != nil {
		writeClosed(c, realtime.Envelope{
			Type: realtime.EventError,
			Data: realtime.ErrorPayload{Message: "authentication failed"},
		})
		return
	}

	client := realtime.NewClient(userUUID, claims.Role, realtime.NewWebSocketConn(c))
	h.Hub.RegisterClient(client)
	defer h.Hub.UnregisterClient(client)

	// Pump hub payloads out to the socket.
	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Println("realtime: write error:", err)
				return
			}
		}
	}()

	// Events from one connection are handled in arrival order.
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}

		var ev realtime.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.Hub.SendError(client, "", "malformed event")
			continue
		}

		h.dispatch(ctx, client, ref, ev)
	}
}

func writeClosed(c *websocket.Conn, v realtime.Envelope) {
	payload, err := json.Marshal(v)
	if err == nil {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
	_ = c.Close()
}

// dispatch routes one event. Every failure becomes an error event scoped to
// the originating connection; nothing here may take the hub down.
func (h *WSHandler) dispatch(ctx context.Context, client *realtime.Client, ref chat.ParticipantRef, ev realtime.Event) {
	switch ev.Type {
	case realtime.EventJoinConversation:
		h.handleJoin(ctx, client, ref, ev)
	case realtime.EventLeaveConversation:
		h.handleLeave(client, ev)
	case realtime.EventSendMessage:
		h.handleSendMessage(ctx, client, ref, ev)
	case realtime.EventMarkAsRead:
		h.handleMarkAsRead(ctx, client, ref, ev)
	case realtime.EventTyping:
		h.handleTyping(ctx, client, ref, ev)
	case "pong":
		// Keepalive, nothing to do.
	default:
		h.Hub.SendError(client, ev.Type, "unknown event")
	}
}

type roomPayload struct {
	ConversationID string `json:"conversation_id"`
}

func (h *WSHandler) handleJoin(ctx context.Context, client *realtime.Client, ref chat.ParticipantRef, ev realtime.Event) {
	var p roomPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.Hub.SendError(client, ev.Type, "conversation_id is required")
		return
	}
	convUUID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		h.Hub.SendError(client, ev.Type, "invalid conversation_id")
		return
	}

	// Membership check before any room data flows.
	if _, err := h.Conversations.GetByID(ctx, convUUID, ref); err != nil {
		h.Hub.SendError(client, ev.Type, "conversation not found")
		return
	}

	h.Hub.JoinRoom(client, convUUID)
}

func (h *WSHandler) handleLeave(client *realtime.Client, ev realtime.Event) {
	var p roomPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.Hub.SendError(client, ev.Type, "conversation_id is required")
		return
	}
	convUUID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		h.Hub.SendError(client, ev.Type, "invalid conversation_id")
		return
	}

	h.Hub.LeaveRoom(client, convUUID)
}

type sendMessagePayload struct {
	ConversationID string             `json:"conversation_id"`
	Content        string             `json:"content"`
	MessageType    string             `json:"message_type"`
	Attachment     *models.Attachment `json:"attachment"`
}

func (h *WSHandler) handleSendMessage(ctx context.Context, client *realtime.Client, ref chat.ParticipantRef, ev realtime.Event) {
	var p sendMessagePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.Hub.SendError(client, ev.Type, "malformed payload")
		return
	}
	convUUID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		h.Hub.SendError(client, ev.Type, "invalid conversation_id")
		return
	}

	msg, err := h.Messages.Append(ctx, chat.AppendInput{
		ConversationID: convUUID,
		Sender:         ref,
		Content:        p.Content,
		Type:           models.MessageType(p.MessageType),
		Attachment:     p.Attachment,
	})
	if err != nil && !errors.Is(err, chat.ErrCacheUpdate) {
		h.Hub.SendError(client, ev.Type, appendErrorMessage(err))
		return
	}

	h.Hub.BroadcastRoom(convUUID, realtime.Envelope{
		Type: realtime.EventNewMessage,
		Data: msg,
	}, nil)

	// Reach the recipient even if they haven't joined the room yet.
	recipient := chat.ParticipantRef{ID: msg.RecipientID, Kind: models.KindStudent}
	if msg.RecipientRole == models.ParticipantTeacher {
		recipient.Kind = models.KindTeacherProfile
	}
	recipientUserID, err := h.Conversations.OwnerUserID(ctx, recipient)
	if err != nil {
		log.Println("realtime: resolve recipient:", err)
		return
	}

	notification := realtime.Envelope{
		Type: realtime.EventNotification,
		Data: map[string]interface{}{
			"kind":            "chat_message",
			"conversation_id": convUUID.String(),
			"sender_id":       client.UserID.String(),
			"content":         msg.Content,
		},
	}
	h.Hub.SendToUser(recipientUserID, notification)
	h.Hub.Notify(ctx, recipientUserID, notification)
}

func appendErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return err.Error()
	case errors.Is(err, chat.ErrNotFound):
		return "conversation not found"
	default:
		log.Println("realtime: send message:", err)
		return "failed to send message"
	}
}

func (h *WSHandler) handleMarkAsRead(ctx context.Context, client *realtime.Client, ref chat.ParticipantRef, ev realtime.Event) {
	var p roomPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.Hub.SendError(client, ev.Type, "conversation_id is required")
		return
	}
	convUUID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		h.Hub.SendError(client, ev.Type, "invalid conversation_id")
		return
	}

	count, err := h.Messages.MarkSeen(ctx, convUUID, ref)
	if err != nil {
		h.Hub.SendError(client, ev.Type, appendErrorMessage(err))
		return
	}
	if err := h.Conversations.MarkRead(ctx, convUUID, ref); err != nil {
		h.Hub.SendError(client, ev.Type, appendErrorMessage(err))
		return
	}

	h.Hub.BroadcastRoom(convUUID, realtime.Envelope{
		Type: realtime.EventMessagesSeen,
		Data: map[string]interface{}{
			"conversation_id": convUUID.String(),
			"reader_id":       client.UserID.String(),
			"count":           count,
		},
	}, nil)
}

type typingPayload struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// handleTyping is broadcast-only, no persistence, sender excluded. Membership
// is checked the same way as join so non-participants cannot signal into rooms.
func (h *WSHandler) handleTyping(ctx context.Context, client *realtime.Client, ref chat.ParticipantRef, ev realtime.Event) {
	var p typingPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		h.Hub.SendError(client, ev.Type, "malformed payload")
		return
	}
	convUUID, err := uuid.Parse(p.ConversationID)
	if err != nil {
		h.Hub.SendError(client, ev.Type, "invalid conversation_id")
		return
	}

	if _, err := h.Conversations.GetByID(ctx, convUUID, ref); err != nil {
		h.Hub.SendError(client, ev.Type, "conversation not found")
		return
	}

	h.Hub.BroadcastRoom(convUUID, realtime.Envelope{
		Type: realtime.EventTyping,
		Data: map[string]interface{}{
			"conversation_id": convUUID.String(),
			"user_id":         client.UserID.String(),
			"is_typing":       p.IsTyping,
		},
	}, client)
}
