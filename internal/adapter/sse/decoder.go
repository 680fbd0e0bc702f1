package sse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire constants.
const (
	DataPrefix = "data: "
	Sentinel   = "[DONE]"
)

// FrameKind is the outcome of decoding one frame.
type FrameKind int

const (
	// FrameIgnored is a frame without the data prefix.
	FrameIgnored FrameKind = iota
	// FrameDone is the termination sentinel.
	FrameDone
	// FramePayload is a data frame holding a JSON object.
	FramePayload
	// FrameMalformed is a data frame whose body failed to parse.
	FrameMalformed
)

func (k FrameKind) String() string {
	switch k {
	case FrameIgnored:
		return "ignored"
	case FrameDone:
		return "done"
	case FramePayload:
		return "payload"
	case FrameMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Frame is a decoded frame. Payload is set for FramePayload; Raw holds the
// data text (prefix stripped) for every data frame; Err is set for
// FrameMalformed.
type Frame struct {
	Kind    FrameKind
	Payload map[string]any
	Raw     string
	Err     error
}

// Decode classifies one frame produced by Split. Parse failures are reported
// as FrameMalformed rather than an error: a bad frame never ends a stream.
func Decode(frame string) Frame {
	line := strings.TrimSpace(frame)
	if !strings.HasPrefix(line, DataPrefix) {
		return Frame{Kind: FrameIgnored}
	}
	data := strings.TrimSpace(line[len(DataPrefix):])
	if data == Sentinel {
		return Frame{Kind: FrameDone, Raw: data}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return Frame{Kind: FrameMalformed, Raw: data, Err: fmt.Errorf("decode frame: %w", err)}
	}
	return Frame{Kind: FramePayload, Payload: payload, Raw: data}
}
