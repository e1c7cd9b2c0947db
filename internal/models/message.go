package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MetadataFollowUp marks assistant messages sent in reaction to client inactivity.
const MetadataFollowUp = "follow_up"

// Message is one immutable turn in a conversation.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (m Message) Clone() Message {
	if m.Metadata == nil {
		return m
	}
	meta := make(map[string]any, len(m.Metadata))
	for k, v := range m.Metadata {
		meta[k] = v
	}
	m.Metadata = meta
	return m
}

func (m Message) IsFollowUp() bool {
	v, ok := m.Metadata[MetadataFollowUp].(bool)
	return ok && v
}
