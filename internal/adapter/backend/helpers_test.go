package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"xunji/internal/domain"
	"xunji/internal/infra/config"
	"xunji/internal/infra/logger"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	last  error
}

func (n *countingNotifier) SessionExpired(_ context.Context, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// recorder captures callback invocations as a flat, ordered log.
type recorder struct {
	mu     sync.Mutex
	log    []string
	err    error
	dones  int
	errors int
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, s)
}

func (r *recorder) handler() domain.StreamHandler {
	return domain.StreamHandler{
		OnContent: func(text string) error {
			r.add("content:" + text)
			return nil
		},
		OnMeta: func(meta map[string]any) error {
			data, _ := json.Marshal(meta)
			r.add("meta:" + string(data))
			return nil
		},
		OnWarning: func(raw string, _ error) {
			r.add("warning:" + raw)
		},
		OnDone: func() {
			r.mu.Lock()
			r.dones++
			r.mu.Unlock()
			r.add("done")
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errors++
			r.err = err
			r.mu.Unlock()
			r.add("error")
		},
	}
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func (r *recorder) terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dones + r.errors
}

// sseServer serves the given chunks with a flush after each.
func sseServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			_, _ = w.Write([]byte(c))
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(baseURL string, creds domain.CredentialSource, n domain.Notifier) *Client {
	return NewClient(config.ServerConfig{BaseURL: baseURL}, creds, n, logger.Nop())
}
