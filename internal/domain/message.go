package domain

import (
	"bytes"
	"fmt"
	"time"
)

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one entry of the conversation list (GET /api/conversations).
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Message is a stored chat message. NodeID and ParentNodeID place it in the
// conversation tree; older messages may have neither.
type Message struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Type         string    `json:"type"`
	NodeID       string    `json:"node_id,omitempty"`
	ParentNodeID string    `json:"parent_node_id,omitempty"`
	CreatedAt    Timestamp `json:"created_at"`
}

// ModelConfig is a user-defined model entry (GET /api/models).
type ModelConfig struct {
	ID          string `json:"id"`
	ModelName   string `json:"model_name"`
	DisplayName string `json:"display_name"`
}

// ModelConfigCreate is the body of POST /api/models.
type ModelConfigCreate struct {
	ModelName   string `json:"model_name"`
	DisplayName string `json:"display_name"`
}

// OpenClawConfig describes a gateway the backend relays OpenClaw chats to.
type OpenClawConfig struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	DisplayName  string    `json:"display_name"`
	GatewayURL   string    `json:"gateway_url"`
	SessionKey   string    `json:"session_key"`
	GatewayToken string    `json:"gateway_token,omitempty"`
	UseSSH       bool      `json:"use_ssh"`
	SSHHost      string    `json:"ssh_host,omitempty"`
	SSHPort      int       `json:"ssh_port,omitempty"`
	SSHUser      string    `json:"ssh_user,omitempty"`
	SSHPassword  string    `json:"ssh_password,omitempty"`
	SSHLocalPort int       `json:"ssh_local_port,omitempty"`
	CreatedAt    Timestamp `json:"created_at,omitzero"`
	UpdatedAt    Timestamp `json:"updated_at,omitzero"`
}

// OpenClawHistoryItem is one entry of GET /api/openclaw/history/{config_id}.
type OpenClawHistoryItem struct {
	Role      string `json:"role"`
	Content   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Timestamp int64 `json:"timestamp"`
}

// Credentials is the body of POST /api/auth/login and /api/auth/register.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// Token is returned by a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DeviceID    string `json:"device_id,omitempty"`
}

// User is returned by a successful registration.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// naiveLayout is the backend's datetime format when no zone is attached.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a time decoded from the backend. Zone-less values are
// taken as UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts RFC 3339 and zone-less ISO 8601 strings, and null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("timestamp: expected string, got %s", data)
	}
	s := string(data[1 : len(data)-1])
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	v, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = v
	return nil
}

// MarshalJSON writes RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return t.Time.MarshalJSON()
}
