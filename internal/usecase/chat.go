package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"xunji/internal/domain"
)

// Exchange channels.
const (
	ChannelChat     = "chat"
	ChannelOpenClaw = "openclaw"
)

// ChatOptions are the per-request defaults applied to every chat turn.
type ChatOptions struct {
	Model        string
	UserID       string
	EnableSearch bool
	EnableRAG    bool
}

// Conversation is the client-side position in a conversation tree.
type Conversation struct {
	ID       string // conversation id; empty starts a new one
	ParentID string // node the next user message attaches to
	Title    string
}

// Turn is the outcome of one streamed exchange.
type Turn struct {
	Reply      string
	UserNodeID string
	AINodeID   string
	Warnings   int
	ExchangeID string // transcript id; empty when history is off
}

// ChatService runs multi-turn chats on top of a ChatStreamer. It follows
// the ids the backend streams back so each turn continues the last one.
type ChatService struct {
	streamer domain.ChatStreamer
	store    domain.TranscriptStore
	logger   *slog.Logger

	mu   sync.Mutex
	opts ChatOptions
	conv Conversation
}

// NewChatService creates a ChatService. store may be nil.
func NewChatService(streamer domain.ChatStreamer, store domain.TranscriptStore, opts ChatOptions, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{streamer: streamer, store: store, opts: opts, logger: logger}
}

// Conversation returns the current conversation position.
func (s *ChatService) Conversation() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// Resume continues an existing conversation from parentID.
func (s *ChatService) Resume(conversationID, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = Conversation{ID: conversationID, ParentID: parentID}
}

// Reset starts a new conversation on the next Send.
func (s *ChatService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = Conversation{}
}

// SetModel changes the model used by later turns.
func (s *ChatService) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Model = model
}

// Send streams one chat turn, writing content deltas to out as they arrive.
// The conversation position advances from the ids the backend returns,
// also when the stream later fails.
func (s *ChatService) Send(ctx context.Context, message string, out io.Writer) (*Turn, error) {
	s.mu.Lock()
	req := domain.ChatRequest{
		UserID:         s.opts.UserID,
		Message:        message,
		ModelName:      s.opts.Model,
		EnableSearch:   s.opts.EnableSearch,
		EnableRAG:      s.opts.EnableRAG,
		FileIDs:        []string{},
		ConversationID: s.conv.ID,
		ParentID:       s.conv.ParentID,
	}
	s.mu.Unlock()

	rec := newTurnRecorder(out, s.applyMeta)
	err := s.streamer.ChatStream(ctx, req, rec.handler())

	ex := rec.exchange(ChannelChat, message, err)
	ex.ConversationID = s.Conversation().ID
	ex.ParentID = req.ParentID
	ex.Title = s.Conversation().Title
	if req.ModelName != "" {
		ex.Meta["model"] = req.ModelName
	}
	return s.finish(ctx, rec, ex, err)
}

// SendOpenClaw streams one turn through the OpenClaw gateway configID.
// OpenClaw turns do not move the chat conversation position.
func (s *ChatService) SendOpenClaw(ctx context.Context, configID, message string, out io.Writer) (*Turn, error) {
	rec := newTurnRecorder(out, nil)
	err := s.streamer.OpenClawStream(ctx, domain.OpenClawChatRequest{Message: message, ConfigID: configID}, rec.handler())

	ex := rec.exchange(ChannelOpenClaw, message, err)
	ex.Meta["config_id"] = configID
	return s.finish(ctx, rec, ex, err)
}

func (s *ChatService) finish(ctx context.Context, rec *turnRecorder, ex *domain.Exchange, err error) (*Turn, error) {
	turn := &Turn{
		Reply:      ex.Reply,
		UserNodeID: ex.UserNodeID,
		AINodeID:   ex.AINodeID,
		Warnings:   ex.Warnings,
	}
	if s.store != nil {
		if serr := s.store.Save(ctx, ex); serr != nil {
			s.logger.Warn("save transcript failed", "error", serr)
		} else {
			turn.ExchangeID = ex.ID
		}
	}
	if err != nil {
		return turn, fmt.Errorf("%s turn: %w", ex.Channel, err)
	}
	return turn, nil
}

// applyMeta advances the conversation from a metadata update.
func (s *ChatService) applyMeta(meta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := meta[domain.MetaSessionID].(string); ok && v != "" {
		s.conv.ID = v
	}
	if v, ok := meta[domain.MetaAINodeID].(string); ok && v != "" {
		s.conv.ParentID = v
	}
	if v, ok := meta[domain.MetaTitle].(string); ok && v != "" {
		s.conv.Title = v
	}
}

// turnRecorder accumulates one turn from stream callbacks.
type turnRecorder struct {
	out      io.Writer
	onMeta   func(map[string]any)
	reply    strings.Builder
	meta     map[string]string
	warnings int
}

func newTurnRecorder(out io.Writer, onMeta func(map[string]any)) *turnRecorder {
	if out == nil {
		out = io.Discard
	}
	return &turnRecorder{out: out, onMeta: onMeta, meta: map[string]string{}}
}

func (r *turnRecorder) handler() domain.StreamHandler {
	return domain.StreamHandler{
		OnContent: func(text string) error {
			r.reply.WriteString(text)
			_, err := io.WriteString(r.out, text)
			return err
		},
		OnMeta: func(meta map[string]any) error {
			for k, v := range meta {
				r.meta[k] = fmt.Sprint(v)
			}
			if r.onMeta != nil {
				r.onMeta(meta)
			}
			return nil
		},
		OnWarning: func(string, error) { r.warnings++ },
		OnDone:    func() {},
		OnError:   func(error) {},
	}
}

func (r *turnRecorder) exchange(channel, prompt string, err error) *domain.Exchange {
	ex := &domain.Exchange{
		Channel:    channel,
		Prompt:     prompt,
		Reply:      r.reply.String(),
		Status:     domain.ExchangeCompleted,
		Warnings:   r.warnings,
		UserNodeID: r.meta[domain.MetaUserNodeID],
		AINodeID:   r.meta[domain.MetaAINodeID],
		Meta:       r.meta,
	}
	if err != nil {
		ex.Status = domain.ExchangeFailed
		ex.Error = err.Error()
	}
	return ex
}
