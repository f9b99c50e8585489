package model

import "time"

// Message is one chat message as routed and delivered. ID is assigned by the
// server only after the message is committed; TempID is the sender's
// correlation token and travels back on the ack so the sender can resolve its
// pending entry.
type Message struct {
	ID          int64     `json:"id"`
	TempID      int64     `json:"tempId,omitempty"`
	SenderID    string    `json:"senderId"`
	Sender      string    `json:"sender"`
	RecipientID string    `json:"recipientId,omitempty"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Private     bool      `json:"isPrivate"`
}

// Participant is one connected user. ID is the opaque per-connection
// identity; Username is accepted as-is and carries no uniqueness guarantee.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
