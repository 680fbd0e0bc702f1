package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"xunji/internal/adapter/sse"
	"xunji/internal/domain"
	"xunji/internal/infra/tracer"
)

// readBufferSize is the size of each read from the response body.
const readBufferSize = 4096

// State is the lifecycle state of one streaming session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events can be dispatched.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ChatStream posts req to /api/chat and dispatches the streamed events to h.
// It blocks until the session reaches a terminal state and returns the
// error passed to h.OnError, or nil after h.OnDone.
func (c *Client) ChatStream(ctx context.Context, req domain.ChatRequest, h domain.StreamHandler) error {
	if req.FileIDs == nil {
		req.FileIDs = []string{}
	}
	return c.stream(ctx, "ChatStream", call{
		method: http.MethodPost,
		path:   "/api/chat",
		body:   req,
		stream: true,
	}, req.Message, h)
}

// OpenClawStream posts req to /api/openclaw/chat. Events are classified
// exactly as for ChatStream.
func (c *Client) OpenClawStream(ctx context.Context, req domain.OpenClawChatRequest, h domain.StreamHandler) error {
	return c.stream(ctx, "OpenClawStream", call{
		method: http.MethodPost,
		path:   "/api/openclaw/chat",
		body:   req,
		stream: true,
	}, req.Message, h)
}

func (c *Client) stream(ctx context.Context, name string, cl call, message string, h domain.StreamHandler) error {
	ctx, span := tracer.StartSpan(ctx, "backend."+name, trace.WithSpanKind(trace.SpanKindClient))
	s := &session{
		op:      "backend." + name,
		h:       h,
		logger:  c.logger.With("op", "backend."+name),
		span:    span,
		started: time.Now(),
	}
	span.SetAttributes(tracer.StringAttr("http.path", cl.path))

	if h.OnContent == nil || h.OnDone == nil {
		return s.fail(domain.NewDomainError(s.op, domain.ErrInvalidInput, "OnContent and OnDone are required"))
	}
	if strings.TrimSpace(message) == "" {
		return s.fail(domain.NewDomainError(s.op, domain.ErrInvalidInput, "message is empty"))
	}

	s.state = StateConnecting
	resp, err := c.connect(ctx, cl)
	if err != nil {
		return s.fail(domain.WrapOp(s.op, err))
	}
	defer resp.Body.Close()

	s.state = StateStreaming
	return s.run(resp.Body)
}

// session drives one response body through the frame pipeline.
// It is owned by a single goroutine.
type session struct {
	op      string
	h       domain.StreamHandler
	logger  *slog.Logger
	span    trace.Span
	state   State
	scanner sse.Scanner
	started time.Time
	stats   streamStats
}

type streamStats struct {
	frames     int
	deltas     int
	meta       int
	warnings   int
	firstDelta time.Duration
	sawDone    bool
}

// run reads body until the sentinel, EOF, or a failure. Bytes returned
// together with an error are processed before the error is handled.
func (s *session) run(body io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			done, err := s.feed(buf[:n])
			if err != nil {
				return s.fail(domain.WrapOp(s.op, err))
			}
			if done {
				s.stats.sawDone = true
				return s.complete()
			}
		}
		if errors.Is(rerr, io.EOF) {
			return s.complete()
		}
		if rerr != nil {
			return s.fail(fmt.Errorf("%s: read stream: %w: %w", s.op, domain.ErrTransport, rerr))
		}
	}
}

// feed scans one chunk and dispatches every event of every completed
// frame in order. It stops at the sentinel; frames after it are dropped.
func (s *session) feed(chunk []byte) (done bool, err error) {
	for _, frame := range s.scanner.Feed(chunk) {
		s.stats.frames++
		events, last := sse.Events(sse.Decode(frame))
		for _, ev := range events {
			if err := s.dispatch(ev); err != nil {
				return false, err
			}
		}
		if last {
			s.scanner.Reset()
			return true, nil
		}
	}
	return false, nil
}

// dispatch hands one event to its callback. A callback error or panic
// becomes an ErrCallback failure.
func (s *session) dispatch(ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s callback panicked: %v", domain.ErrCallback, ev.Kind, r)
		}
	}()

	switch ev.Kind {
	case domain.EventContentDelta:
		s.stats.deltas++
		if s.stats.deltas == 1 {
			s.stats.firstDelta = time.Since(s.started)
		}
		if err := s.h.OnContent(ev.Text); err != nil {
			return fmt.Errorf("%w: content: %w", domain.ErrCallback, err)
		}
	case domain.EventMetaUpdate:
		s.stats.meta++
		if s.h.OnMeta != nil {
			if err := s.h.OnMeta(ev.Meta); err != nil {
				return fmt.Errorf("%w: meta: %w", domain.ErrCallback, err)
			}
		}
	case domain.EventDecodeWarning:
		s.stats.warnings++
		s.logger.Warn("skipping malformed frame", "raw", ev.Raw, "error", ev.Err)
		if s.h.OnWarning != nil {
			s.h.OnWarning(ev.Raw, ev.Err)
		}
	}
	return nil
}

// complete moves to Completed and fires OnDone once.
func (s *session) complete() error {
	if s.state.Terminal() {
		return nil
	}
	s.state = StateCompleted
	if rest := s.scanner.Pending(); rest != "" {
		s.logger.Debug("discarding unterminated frame", "bytes", len(rest))
	}
	s.finish(nil)
	if err := s.terminal(s.h.OnDone); err != nil {
		s.logger.Warn("completion callback panicked", "error", err)
		return domain.WrapOp(s.op, err)
	}
	return nil
}

// fail moves to Failed and fires OnError once with err.
func (s *session) fail(err error) error {
	if s.state.Terminal() {
		return err
	}
	s.state = StateFailed
	s.logger.Warn("stream failed", "error", err, "code", domain.ErrorCodeOf(err))
	s.finish(err)
	if s.h.OnError != nil {
		if perr := s.terminal(func() { s.h.OnError(err) }); perr != nil {
			s.logger.Warn("error callback panicked", "error", perr)
		}
	}
	return err
}

// terminal runs a terminal callback, containing a panic.
func (s *session) terminal(fn func()) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: terminal callback panicked: %v", domain.ErrCallback, r)
		}
	}()
	fn()
	return nil
}

func (s *session) finish(err error) {
	elapsed := time.Since(s.started)
	s.span.SetAttributes(
		tracer.StringAttr("stream.state", s.state.String()),
		tracer.IntAttr("stream.frames", s.stats.frames),
		tracer.IntAttr("stream.deltas", s.stats.deltas),
		tracer.IntAttr("stream.meta_updates", s.stats.meta),
		tracer.IntAttr("stream.warnings", s.stats.warnings),
		tracer.BoolAttr("stream.sentinel", s.stats.sawDone),
		tracer.DurationAttr("stream.first_delta_ms", s.stats.firstDelta),
		tracer.DurationAttr("stream.duration_ms", elapsed),
	)
	tracer.Finish(s.span, err)

	s.logger.Debug("stream finished",
		"state", s.state.String(),
		"frames", s.stats.frames,
		"deltas", s.stats.deltas,
		"meta_updates", s.stats.meta,
		"warnings", s.stats.warnings,
		"sentinel", s.stats.sawDone,
		"first_delta", s.stats.firstDelta,
		"duration", elapsed,
	)
}
