package domain

import (
	"context"
	"time"
)

// Exchange statuses.
const (
	ExchangeCompleted = "completed"
	ExchangeFailed    = "failed"
)

// Exchange is one prompt/reply round trip as seen by the client.
type Exchange struct {
	ID             string            `json:"id"`
	Channel        string            `json:"channel"` // "chat" or "openclaw"
	ConversationID string            `json:"conversation_id,omitempty"`
	ParentID       string            `json:"parent_id,omitempty"`
	UserNodeID     string            `json:"user_node_id,omitempty"`
	AINodeID       string            `json:"ai_node_id,omitempty"`
	Title          string            `json:"title,omitempty"`
	Prompt         string            `json:"prompt"`
	Reply          string            `json:"reply"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	Warnings       int               `json:"warnings"`
	Meta           map[string]string `json:"meta,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TranscriptStore persists exchanges locally.
type TranscriptStore interface {
	Save(ctx context.Context, ex *Exchange) error
	List(ctx context.Context, limit int) ([]*Exchange, error)
	Get(ctx context.Context, id string) (*Exchange, error)
}
