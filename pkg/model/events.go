package model

import "encoding/json"

// EventType tags every frame crossing the websocket boundary. The set is
// closed: the transport drops anything it does not recognize.
type EventType string

// Inbound (client to server).
const (
	EventSendMessage    EventType = "send_message"
	EventPrivateMessage EventType = "private_message"
	EventTyping         EventType = "typing"
)

// Outbound (server to client). EventPrivateMessage is reused for delivery to
// the recipient and the echo to the sender.
const (
	EventUserList       EventType = "user_list"
	EventUserJoined     EventType = "user_joined"
	EventUserLeft       EventType = "user_left"
	EventReceiveMessage EventType = "receive_message"
	EventTypingUsers    EventType = "typing_users"
	EventAck            EventType = "ack"
)

// Envelope is the wire frame in both directions. Data holds the
// per-event payload, decoded by type.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode marshals one event frame.
func Encode(t EventType, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Data: payload})
}

// SendMessagePayload is the inbound payload for EventSendMessage.
type SendMessagePayload struct {
	Content string `json:"content"`
	TempID  int64  `json:"tempId"`
}

// PrivateMessagePayload is the inbound payload for EventPrivateMessage.
type PrivateMessagePayload struct {
	To      string `json:"to"`
	Content string `json:"content"`
	TempID  int64  `json:"tempId"`
}

// TypingPayload is the inbound payload for EventTyping.
type TypingPayload struct {
	Typing bool `json:"typing"`
}

// Ack resolves a sender's pending message. ServerID > 0 means the message
// was committed under that id; 0 means the send failed.
type Ack struct {
	TempID   int64 `json:"tempId"`
	ServerID int64 `json:"serverId"`
}
