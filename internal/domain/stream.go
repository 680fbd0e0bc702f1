package domain

import "context"

// ChatRequest is the body of POST /api/chat. It is built by the caller and
// not mutated by the client.
type ChatRequest struct {
	UserID         string           `json:"user_id,omitempty"`
	Message        string           `json:"message"`
	ModelName      string           `json:"model_name,omitempty"`
	EnableSearch   bool             `json:"enable_search"`
	EnableRAG      bool             `json:"enable_rag"`
	FileIDs        []string         `json:"file_ids"`
	ConversationID string           `json:"conversation_id,omitempty"`
	ParentID       string           `json:"parent_id,omitempty"`
	Files          []map[string]any `json:"files,omitempty"`
}

// OpenClawChatRequest is the body of POST /api/openclaw/chat.
type OpenClawChatRequest struct {
	Message  string `json:"message"`
	ConfigID string `json:"config_id"`
}

// EventKind identifies the variant carried by an Event.
type EventKind int

const (
	EventContentDelta EventKind = iota + 1
	EventMetaUpdate
	EventDone
	EventDecodeWarning
)

func (k EventKind) String() string {
	switch k {
	case EventContentDelta:
		return "content_delta"
	case EventMetaUpdate:
		return "meta_update"
	case EventDone:
		return "done"
	case EventDecodeWarning:
		return "decode_warning"
	default:
		return "unknown"
	}
}

// Event is one classified unit of a chat stream. Exactly one of Text, Meta
// or Raw is meaningful depending on Kind.
type Event struct {
	Kind EventKind
	Text string         // EventContentDelta
	Meta map[string]any // EventMetaUpdate; never contains "content"
	Raw  string         // EventDecodeWarning
	Err  error          // EventDecodeWarning parse error
}

// Well-known metadata fields emitted by the chat endpoint.
const (
	MetaSessionID  = "session_id"
	MetaUserNodeID = "user_node_id"
	MetaAINodeID   = "ai_node_id"
	MetaTitle      = "title"
)

// StreamHandler receives the events of one streaming session. OnContent and
// OnDone are required; the other callbacks may be nil.
//
// At most one of OnDone and OnError fires per session, after every content
// and metadata callback. A callback returning an error (or panicking) fails
// the session.
type StreamHandler struct {
	OnContent func(text string) error
	OnMeta    func(meta map[string]any) error
	OnWarning func(raw string, err error)
	OnDone    func()
	OnError   func(err error)
}

// ChatStreamer is the streaming side of the backend client.
type ChatStreamer interface {
	ChatStream(ctx context.Context, req ChatRequest, h StreamHandler) error
	OpenClawStream(ctx context.Context, req OpenClawChatRequest, h StreamHandler) error
}

// CredentialSource yields the bearer token for outgoing requests.
// An empty token with a nil error means "send no Authorization header".
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// Notifier is the user-facing sink for out-of-band notices.
type Notifier interface {
	// SessionExpired is called once per request that the backend rejected
	// with 401, before the failure is returned to the caller.
	SessionExpired(ctx context.Context, err error)
}
