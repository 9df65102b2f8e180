package model

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

type ChatMessage struct {
	ID        int64       `json:"id"`
	RoomID    int64       `json:"roomId"`
	SenderID  int64       `json:"senderId"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Edited    bool        `json:"edited"`
	ReplyToID *int64      `json:"replyTo,omitempty"`

	Sender       *UserPublic  `json:"sender,omitempty"`
	ReplyMessage *ChatMessage `json:"replyMessage,omitempty"`
}

// Preview is the trimmed copy attached to replies.
func (m *ChatMessage) Preview() *ChatMessage {
	return &ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Edited:    m.Edited,
	}
}
