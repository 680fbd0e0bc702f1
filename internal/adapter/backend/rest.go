package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"xunji/internal/domain"
	"xunji/internal/infra/tracer"
)

// maxResponseBody is the maximum JSON response size read from the backend.
const maxResponseBody = 10 * 1024 * 1024

// doJSON performs a non-streaming call and decodes the response into out
// when out is non-nil.
func (c *Client) doJSON(ctx context.Context, name string, cl call, out any) error {
	op := "backend." + name
	ctx, span := tracer.StartSpan(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		tracer.StringAttr("http.method", cl.method),
		tracer.StringAttr("http.path", cl.path),
	)

	err := c.roundTrip(ctx, cl, out)
	tracer.Finish(span, err)
	if err != nil {
		c.logger.Debug("backend call failed", "op", op, "error", err)
		return domain.WrapOp(op, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, cl call, out any) error {
	resp, err := c.connect(ctx, cl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", domain.ErrTransport, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.Token, error) {
	var tok domain.Token
	err := c.doJSON(ctx, "Login", call{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   domain.Credentials{Username: username, Password: password},
	}, &tok)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, creds domain.Credentials) (*domain.User, error) {
	var u domain.User
	if err := c.doJSON(ctx, "Register", call{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   creds,
	}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListConversations returns the most recent conversations. limit <= 0
// leaves the server default.
func (c *Client) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []domain.Conversation
	err := c.doJSON(ctx, "ListConversations", call{method: http.MethodGet, path: "/api/conversations", query: q}, &out)
	return out, err
}

// ConversationMessages returns every message of a conversation.
func (c *Client) ConversationMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	err := c.doJSON(ctx, "ConversationMessages", call{
		method: http.MethodGet,
		path:   "/api/conversations/" + url.PathEscape(conversationID) + "/messages",
	}, &out)
	return out, err
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, "DeleteConversation", call{
		method: http.MethodDelete,
		path:   "/api/conversations/" + url.PathEscape(conversationID),
	}, nil)
}

// NodePath returns the messages from the tree root down to nodeID.
func (c *Client) NodePath(ctx context.Context, nodeID string) ([]domain.Message, error) {
	var out []domain.Message
	err := c.doJSON(ctx, "NodePath", call{
		method: http.MethodGet,
		path:   "/api/tree/path/" + url.PathEscape(nodeID),
	}, &out)
	return out, err
}

// ListModels returns the user's model entries.
func (c *Client) ListModels(ctx context.Context) ([]domain.ModelConfig, error) {
	var out []domain.ModelConfig
	err := c.doJSON(ctx, "ListModels", call{method: http.MethodGet, path: "/api/models"}, &out)
	return out, err
}

// CreateModel adds a model entry.
func (c *Client) CreateModel(ctx context.Context, in domain.ModelConfigCreate) (*domain.ModelConfig, error) {
	var out domain.ModelConfig
	if err := c.doJSON(ctx, "CreateModel", call{method: http.MethodPost, path: "/api/models", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteModel removes a model entry.
func (c *Client) DeleteModel(ctx context.Context, modelID string) error {
	return c.doJSON(ctx, "DeleteModel", call{
		method: http.MethodDelete,
		path:   "/api/models/" + url.PathEscape(modelID),
	}, nil)
}

// ListOpenClawConfigs returns the gateway configs of userID.
func (c *Client) ListOpenClawConfigs(ctx context.Context, userID string) ([]domain.OpenClawConfig, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	var out []domain.OpenClawConfig
	err := c.doJSON(ctx, "ListOpenClawConfigs", call{method: http.MethodGet, path: "/api/openclaw/configs", query: q}, &out)
	return out, err
}

// CreateOpenClawConfig stores a new gateway config.
func (c *Client) CreateOpenClawConfig(ctx context.Context, in domain.OpenClawConfig) (*domain.OpenClawConfig, error) {
	var out domain.OpenClawConfig
	if err := c.doJSON(ctx, "CreateOpenClawConfig", call{
		method: http.MethodPost,
		path:   "/api/openclaw/configs",
		body:   in,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOpenClawConfig replaces the fields of an existing gateway config.
func (c *Client) UpdateOpenClawConfig(ctx context.Context, configID string, in domain.OpenClawConfig) (*domain.OpenClawConfig, error) {
	var out domain.OpenClawConfig
	if err := c.doJSON(ctx, "UpdateOpenClawConfig", call{
		method: http.MethodPut,
		path:   "/api/openclaw/configs/" + url.PathEscape(configID),
		body:   in,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteOpenClawConfig removes a gateway config owned by userID.
func (c *Client) DeleteOpenClawConfig(ctx context.Context, configID, userID string) error {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	return c.doJSON(ctx, "DeleteOpenClawConfig", call{
		method: http.MethodDelete,
		path:   "/api/openclaw/configs/" + url.PathEscape(configID),
		query:  q,
	}, nil)
}

// ConnectOpenClaw asks the backend to open the gateway of configID.
// The response shape is backend-defined and returned as-is.
func (c *Client) ConnectOpenClaw(ctx context.Context, configID string) (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(ctx, "ConnectOpenClaw", call{
		method: http.MethodPost,
		path:   "/api/openclaw/connect",
		body:   map[string]string{"config_id": configID},
	}, &out)
	return out, err
}

// CreateAndConnectOpenClaw stores a gateway config and connects it.
func (c *Client) CreateAndConnectOpenClaw(ctx context.Context, in domain.OpenClawConfig) (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(ctx, "CreateAndConnectOpenClaw", call{
		method: http.MethodPost,
		path:   "/api/openclaw/configs/connect",
		body:   in,
	}, &out)
	return out, err
}

// OpenClawHistory returns the gateway-side history of configID.
func (c *Client) OpenClawHistory(ctx context.Context, configID string) ([]domain.OpenClawHistoryItem, error) {
	var out []domain.OpenClawHistoryItem
	err := c.doJSON(ctx, "OpenClawHistory", call{
		method: http.MethodGet,
		path:   "/api/openclaw/history/" + url.PathEscape(configID),
	}, &out)
	return out, err
}

// Compile-time interface check.
var _ domain.ChatStreamer = (*Client)(nil)
