package sse

import "strings"

// Delimiter terminates a frame on the wire.
const Delimiter = "\n\n"

// Split appends chunk to pending and extracts every complete frame, in
// arrival order. rest is the unterminated remainder, returned verbatim so the
// next call can complete it. Frames do not include the delimiter.
//
// Because the search always runs over pending+chunk, the result does not
// depend on where the transport cut the byte stream, including cuts inside
// the delimiter itself.
func Split(pending string, chunk []byte) (frames []string, rest string) {
	buf := pending + string(chunk)
	for {
		i := strings.Index(buf, Delimiter)
		if i < 0 {
			return frames, buf
		}
		frames = append(frames, buf[:i])
		buf = buf[i+len(Delimiter):]
	}
}

// Scanner owns the pending buffer of a single stream. It is not safe for
// concurrent use; each session creates its own.
type Scanner struct {
	pending string
}

// Feed appends chunk and returns the frames it completed.
func (s *Scanner) Feed(chunk []byte) []string {
	frames, rest := Split(s.pending, chunk)
	s.pending = rest
	return frames
}

// Pending returns the bytes still waiting for a delimiter.
func (s *Scanner) Pending() string { return s.pending }

// Reset discards the pending buffer.
func (s *Scanner) Reset() { s.pending = "" }
