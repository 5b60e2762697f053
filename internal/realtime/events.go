package realtime

import "encoding/json"

// Client-originated event names.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventMarkAsRead        = "mark_as_read"
	EventTyping            = "typing"
)

// Server-originated event names.
const (
	EventNewMessage   = "new_message"
	EventNotification = "notification"
	EventMessagesSeen = "messages_seen"
	EventMemberJoined = "member_joined"
	EventMemberLeft   = "member_left"
	EventOnlineUsers  = "online_users"
	EventError        = "error"
)

// Event is the wire frame read from a connection.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Envelope is the wire frame written to connections.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
