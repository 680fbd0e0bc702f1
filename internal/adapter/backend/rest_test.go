package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xunji/internal/domain"
	"xunji/internal/infra/config"
	"xunji/internal/infra/logger"
)

func jsonServer(t *testing.T, fn func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fn(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLogin(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var in domain.Credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "alice", in.Username)
		assert.Equal(t, "secret", in.Password)
		_, _ = io.WriteString(w, `{"access_token":"jwt","token_type":"bearer","user_id":"u1","username":"alice"}`)
	})

	tok, err := newTestClient(srv.URL, staticToken(""), nil).Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt", tok.AccessToken)
	assert.Equal(t, "u1", tok.UserID)
}

func TestLoginBadPassword(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"用户名或密码错误"}`)
	})

	n := &countingNotifier{}
	_, err := newTestClient(srv.URL, nil, n).Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, domain.ErrAuthInvalid)
	assert.Contains(t, err.Error(), "backend.Login")
	assert.Contains(t, err.Error(), "用户名或密码错误")
	assert.Equal(t, 1, n.count())
}

func TestRegister(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"u2","username":"bob","email":"bob@example.com"}`)
	})
	u, err := newTestClient(srv.URL, nil, nil).Register(context.Background(),
		domain.Credentials{Username: "bob", Password: "pw", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "u2", u.ID)
}

func TestListConversations(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"id":"c1","title":"旅行计划","created_at":"2025-01-02T03:04:05.000006","updated_at":"2025-01-02T03:04:05"}]`)
	})
	convs, err := newTestClient(srv.URL, staticToken("t"), nil).ListConversations(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "旅行计划", convs[0].Title)
	assert.Equal(t, 2025, convs[0].CreatedAt.Year())
}

func TestConversationMessagesAndPath(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/conversations/c1/messages", "/api/tree/path/n2":
			_, _ = io.WriteString(w, `[{"id":"m1","role":"user","content":"hi","type":"text","created_at":"2025-01-02T03:04:05","node_id":"n1"},`+
				`{"id":"m2","role":"assistant","content":"hello","type":"text","created_at":"2025-01-02T03:04:06","node_id":"n2","parent_node_id":"n1"}]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := newTestClient(srv.URL, nil, nil)

	msgs, err := c.ConversationMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "n1", msgs[1].ParentNodeID)

	path, err := c.NodePath(context.Background(), "n2")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, path[1].Role)
}

func TestDeleteConversation(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/api/conversations/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Conversation not found"}`)
			return
		}
		assert.Equal(t, "/api/conversations/c1", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"success"}`)
	})
	c := newTestClient(srv.URL, nil, nil)

	require.NoError(t, c.DeleteConversation(context.Background(), "c1"))
	err := c.DeleteConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestModels(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/models":
			_, _ = io.WriteString(w, `[{"id":"1","model_name":"deepseek-chat","display_name":"DeepSeek"}]`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/models":
			var in domain.ModelConfigCreate
			_ = json.NewDecoder(r.Body).Decode(&in)
			_ = json.NewEncoder(w).Encode(domain.ModelConfig{ID: "2", ModelName: in.ModelName, DisplayName: in.DisplayName})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/models/2":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	c := newTestClient(srv.URL, nil, nil)

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", models[0].ModelName)

	m, err := c.CreateModel(context.Background(), domain.ModelConfigCreate{ModelName: "qwen-max", DisplayName: "Qwen"})
	require.NoError(t, err)
	assert.Equal(t, "2", m.ID)
	assert.Equal(t, "qwen-max", m.ModelName)

	require.NoError(t, c.DeleteModel(context.Background(), "2"))
}

func TestOpenClawConfigs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		switch r.URL.Path {
		case "/api/openclaw/configs", "/api/openclaw/configs/cfg-1":
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `[{"id":"cfg-1","display_name":"home","gateway_url":"ws://h","session_key":"main","use_ssh":false}]`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"cfg-1","display_name":"home","gateway_url":"ws://h","session_key":"main","use_ssh":false}`)
		case "/api/openclaw/connect", "/api/openclaw/configs/connect":
			_, _ = io.WriteString(w, `{"status":"connected"}`)
		case "/api/openclaw/history/cfg-1":
			_, _ = io.WriteString(w, `[{"role":"assistant","content":[{"type":"text","text":"hi"}],"timestamp":1735689600000}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := newTestClient(srv.URL, nil, nil)
	ctx := context.Background()
	cfg := domain.OpenClawConfig{DisplayName: "home", GatewayURL: "ws://h", SessionKey: "main"}

	list, err := c.ListOpenClawConfigs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "cfg-1", list[0].ID)

	created, err := c.CreateOpenClawConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "cfg-1", created.ID)

	_, err = c.UpdateOpenClawConfig(ctx, "cfg-1", cfg)
	require.NoError(t, err)
	require.NoError(t, c.DeleteOpenClawConfig(ctx, "cfg-1", "u1"))

	status, err := c.ConnectOpenClaw(ctx, "cfg-1")
	require.NoError(t, err)
	assert.Equal(t, "connected", status["status"])
	_, err = c.CreateAndConnectOpenClaw(ctx, cfg)
	require.NoError(t, err)

	hist, err := c.OpenClawHistory(ctx, "cfg-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", hist[0].Content[0].Text)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /api/openclaw/configs?user_id=u1",
		"POST /api/openclaw/configs?",
		"PUT /api/openclaw/configs/cfg-1?",
		"DELETE /api/openclaw/configs/cfg-1?user_id=u1",
		"POST /api/openclaw/connect?",
		"POST /api/openclaw/configs/connect?",
		"GET /api/openclaw/history/cfg-1?",
	}, seen)
}

func TestPathSegmentsAreEscaped(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tree/path/a%2Fb", r.URL.EscapedPath())
		_, _ = io.WriteString(w, `[]`)
	})
	_, err := newTestClient(srv.URL, nil, nil).NodePath(context.Background(), "a/b")
	require.NoError(t, err)
}

func TestDecodeFailureIsReported(t *testing.T) {
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	})
	_, err := newTestClient(srv.URL, nil, nil).ListModels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestRateLimiterPacesRequests(t *testing.T) {
	var hits atomic.Int32
	srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `[]`)
	})
	c := NewClient(config.ServerConfig{
		BaseURL:   srv.URL,
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1},
	}, nil, nil, logger.Nop())

	_, err := c.ListModels(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListModels(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, int32(1), hits.Load())
}

func TestMapHTTPError(t *testing.T) {
	he := mapHTTPError(422, []byte(`{"detail":[{"msg":"a"},{"msg":"b"}]}`))
	assert.Equal(t, "a; b", he.Detail)
	assert.ErrorIs(t, he, domain.ErrInvalidInput)

	he = mapHTTPError(500, []byte(`Internal Server Error`))
	assert.Equal(t, "", he.Detail)
	assert.Equal(t, "http status 500", he.Error())

	he = mapHTTPError(400, []byte(`{"error":"other shape"}`))
	assert.Equal(t, "", he.Detail)
}

func TestNewPooledTransportDefaults(t *testing.T) {
	tr := NewPooledTransport(0, 0, config.PoolConfig{})
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)
	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxConnsPerHost, tr.MaxConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, tr.IdleConnTimeout)

	tr = NewPooledTransport(time.Second, 2*time.Second, config.PoolConfig{MaxIdleConns: 3, MaxConnsPerHost: 4})
	assert.Equal(t, 2*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 3, tr.MaxIdleConns)
	assert.Equal(t, 4, tr.MaxConnsPerHost)
}
