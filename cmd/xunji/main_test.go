package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xunji/internal/domain"
)

// fakeBackend serves the subset of the chat API the CLI touches.
func fakeBackend(t *testing.T, expired *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" && (expired.Load() || r.Header.Get("Authorization") != "Bearer jwt-1") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Could not validate credentials"}`)
			return
		}
		switch r.URL.Path {
		case "/api/auth/login":
			var in domain.Credentials
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in.Password != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"用户名或密码错误"}`)
				return
			}
			_, _ = io.WriteString(w, `{"access_token":"jwt-1","token_type":"bearer","user_id":"u1","username":"alice"}`)
		case "/api/chat":
			var req domain.ChatRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			conv := req.ConversationID
			if conv == "" {
				conv = "conv-1"
			}
			fmt.Fprintf(w, "data: {\"session_id\":%q,\"user_node_id\":\"u-node\"}\n\n", conv)
			fmt.Fprintf(w, "data: {\"content\":\"echo:\"}\n\ndata: {\"content\":%q}\n\n", req.Message)
			_, _ = io.WriteString(w, "data: {\"ai_node_id\":\"a-node\"}\n\ndata: [DONE]\n\n")
		case "/api/conversations":
			_, _ = io.WriteString(w, `[{"id":"conv-1","title":"测试","created_at":"2025-01-01T00:00:00","updated_at":"2025-01-01T00:00:00"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Not Found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) (cfgPath, tokenPath string) {
	t.Helper()
	dir := t.TempDir()
	tokenPath = filepath.Join(dir, "token")
	cfgPath = filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`server:
  base_url: %s
auth:
  token_file: %s
history:
  enabled: true
  path: %s
logger:
  level: error
  output: discard
`, baseURL, tokenPath, filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0600))
	return cfgPath, tokenPath
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func TestLoginChatHistoryFlow(t *testing.T) {
	var expired atomic.Bool
	srv := fakeBackend(t, &expired)
	cfg, tokenPath := writeConfig(t, srv.URL)

	res := runCLI(t, "pw\n", "-f", cfg, "login", "-u", "alice")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "logged in as alice")
	_, err := os.Stat(tokenPath)
	require.NoError(t, err)

	res = runCLI(t, "", "-f", cfg, "chat", "-q", "你好")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "echo:你好\n", res.stdout)
	assert.Contains(t, res.stderr, "conversation: conv-1  node: a-node")

	res = runCLI(t, "", "-f", cfg, "history")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "completed")
	assert.Contains(t, res.stdout, "你好")

	res = runCLI(t, "", "-f", cfg, "conversations", "-n", "5")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "conv-1")
	assert.Contains(t, res.stdout, "测试")
}

func TestInteractiveChatContinuesConversation(t *testing.T) {
	var expired atomic.Bool
	srv := fakeBackend(t, &expired)
	cfg, _ := writeConfig(t, srv.URL)
	require.Equal(t, 0, runCLI(t, "", "-f", cfg, "login", "-u", "alice", "-p", "pw").code)

	res := runCLI(t, "first\n\nsecond\n/quit\nignored\n", "-f", cfg, "chat")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "echo:first\necho:second\n", res.stdout)
}

func TestExpiredSessionClearsToken(t *testing.T) {
	var expired atomic.Bool
	srv := fakeBackend(t, &expired)
	cfg, tokenPath := writeConfig(t, srv.URL)
	require.Equal(t, 0, runCLI(t, "", "-f", cfg, "login", "-u", "alice", "-p", "pw").code)

	expired.Store(true)
	res := runCLI(t, "", "-f", cfg, "chat", "-q", "hi")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, 1, strings.Count(res.stderr, "session expired"))
	assert.Contains(t, res.stderr, "AUTH_INVALID")
	assert.Contains(t, res.stderr, "Could not validate credentials")

	_, err := os.Stat(tokenPath)
	assert.True(t, os.IsNotExist(err), "token file should be removed")
}

func TestLoginWrongPassword(t *testing.T) {
	var expired atomic.Bool
	srv := fakeBackend(t, &expired)
	cfg, tokenPath := writeConfig(t, srv.URL)

	res := runCLI(t, "", "-f", cfg, "login", "-u", "alice", "-p", "nope")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "用户名或密码错误")
	_, err := os.Stat(tokenPath)
	assert.True(t, os.IsNotExist(err))
}

func TestLogout(t *testing.T) {
	var expired atomic.Bool
	srv := fakeBackend(t, &expired)
	cfg, tokenPath := writeConfig(t, srv.URL)
	require.Equal(t, 0, runCLI(t, "", "-f", cfg, "login", "-u", "alice", "-p", "pw").code)

	res := runCLI(t, "", "-f", cfg, "logout")
	require.Equal(t, 0, res.code, res.stderr)
	_, err := os.Stat(tokenPath)
	assert.True(t, os.IsNotExist(err))
}

func TestUsageErrors(t *testing.T) {
	res := runCLI(t, "")
	assert.Equal(t, 2, res.code)

	res = runCLI(t, "", "messages")
	assert.Equal(t, 2, res.code)

	res = runCLI(t, "", "--help")
	assert.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "conversations")
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  base_url: ftp://nowhere\n"), 0600))

	res := runCLI(t, "", "-f", path, "models")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "CONFIG_LOAD")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "你好世…", truncate("你好世界和平", 4))
}
