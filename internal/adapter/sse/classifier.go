package sse

import "xunji/internal/domain"

// ContentField is the payload member carrying a text delta.
const ContentField = "content"

// Classify derives events from a decoded payload: a ContentDelta when
// "content" is a non-empty string, then a MetaUpdate holding every other
// member. "content" is never copied into the metadata. A payload with
// neither yields no events.
//
// Unknown members are forwarded as metadata untouched, so new side-channel
// fields need no change here.
func Classify(payload map[string]any) []domain.Event {
	var events []domain.Event
	if text, ok := payload[ContentField].(string); ok && text != "" {
		events = append(events, domain.Event{Kind: domain.EventContentDelta, Text: text})
	}

	var meta map[string]any
	for k, v := range payload {
		if k == ContentField {
			continue
		}
		if meta == nil {
			meta = make(map[string]any, len(payload))
		}
		meta[k] = v
	}
	if meta != nil {
		events = append(events, domain.Event{Kind: domain.EventMetaUpdate, Meta: meta})
	}
	return events
}

// Events maps a decoded frame to the events it produces. done reports
// whether the frame was the termination sentinel.
func Events(f Frame) (events []domain.Event, done bool) {
	switch f.Kind {
	case FrameDone:
		return []domain.Event{{Kind: domain.EventDone}}, true
	case FrameMalformed:
		return []domain.Event{{Kind: domain.EventDecodeWarning, Raw: f.Raw, Err: f.Err}}, false
	case FramePayload:
		return Classify(f.Payload), false
	default:
		return nil, false
	}
}
