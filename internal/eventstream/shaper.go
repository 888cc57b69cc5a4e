// Package eventstream shapes an agent's raw output lines into an SSE
// event stream: well-formed JSON objects pass through unchanged, partial
// JSON lines are buffered and retried, anything else is wrapped as a log
// line, and forwarding stops at a hard event cap.
package eventstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxForwardedEvents is the default cap on events forwarded per
// generation: a 1001-line input forwards exactly 1000 events plus one
// warning plus one terminal event.
const MaxForwardedEvents = 1000

// Event is one SSE payload. Raw holds the exact JSON bytes to forward when
// set (the "forward unchanged" case); Constructed holds a value to marshal
// fresh otherwise (log/warning/debug/error events synthesized by the
// shaper itself).
type Event struct {
	Raw         string
	Constructed map[string]any
}

func logEvent(content string) Event {
	return Event{Constructed: map[string]any{"type": "log", "content": content}}
}

func warningEvent(content string) Event {
	return Event{Constructed: map[string]any{"type": "warning", "content": content}}
}

// Shaper holds the one-line lookahead buffer across Feed calls for a
// single generation.
type Shaper struct {
	max       int
	buf       strings.Builder
	buffered  bool
	forwarded int
	capped    bool
}

func New(max int) *Shaper {
	if max <= 0 {
		max = MaxForwardedEvents
	}
	return &Shaper{max: max}
}

// Feed processes one raw output line, returning zero or more events to
// forward (zero when the line is held as the possible first half of a
// split JSON object, one in the common case, and more when a held line
// that this line did not complete is released as a log event or the cap
// is reached this call). Once capped, Feed returns nil for every
// subsequent line.
func (s *Shaper) Feed(line string) []Event {
	if s.capped {
		return nil
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if s.buffered {
		held := s.buf.String()
		s.buf.Reset()
		s.buffered = false
		if compact, ok := compactObject(held + "\n" + line); ok {
			return s.emit(Event{Raw: compact})
		}
		// The held line did not complete with this one: release it as a log
		// line and handle the current line on its own.
		out := s.emit(logEvent(held))
		if s.capped {
			return out
		}
		return append(out, s.Feed(line)...)
	}

	if isObject(line) {
		return s.emit(Event{Raw: line})
	}

	if strings.HasPrefix(line, "{") {
		s.buf.Reset()
		s.buf.WriteString(line)
		s.buffered = true
		return nil
	}

	return s.emit(logEvent(line))
}

// Flush returns the buffered partial line (if any) as a single log event;
// called once at end-of-stream.
func (s *Shaper) Flush() []Event {
	if !s.buffered {
		return nil
	}
	content := s.buf.String()
	s.buf.Reset()
	s.buffered = false
	if s.capped {
		return nil
	}
	return s.emit(logEvent(content))
}

func (s *Shaper) emit(e Event) []Event {
	s.forwarded++
	if s.forwarded >= s.max {
		s.capped = true
		return []Event{e, warningEvent("Output limit reached")}
	}
	return []Event{e}
}

// ForwardedCount reports how many events have been forwarded so far,
// surfaced in the debug event.
func (s *Shaper) ForwardedCount() int {
	return s.forwarded
}

func isObject(candidate string) bool {
	_, ok := compactObject(candidate)
	return ok
}

// compactObject decodes candidate as a single JSON value and, if it is an
// object, returns it re-marshaled onto one line with no embedded newlines.
// Reassembled multi-line input must go through this before being forwarded
// as Event.Raw: a raw SSE frame is "data: <json>\n\n", and any literal
// newline inside <json> would split the payload across lines an
// EventSource client can't parse as one event.
func compactObject(candidate string) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return "", false
	}
	if dec.More() {
		return "", false
	}
	if !strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false
	}
	return buf.String(), true
}

// Marshal renders an Event as one SSE `data: ...\n\n` frame.
func Marshal(e Event) (string, error) {
	if e.Raw != "" {
		return "data: " + e.Raw + "\n\n", nil
	}
	b, err := json.Marshal(e.Constructed)
	if err != nil {
		return "", fmt.Errorf("marshaling event: %w", err)
	}
	return "data: " + string(b) + "\n\n", nil
}

// DebugEvent builds the per-generation debug event.
func DebugEvent(exitCode int, elapsedSeconds float64, forwardedEvents int, warm bool, commitHash, traceID string) Event {
	c := map[string]any{
		"type":             "debug",
		"exit_code":        exitCode,
		"elapsed_seconds":  elapsedSeconds,
		"forwarded_events": forwardedEvents,
		"sandbox_reused":   warm,
	}
	if commitHash != "" {
		c["commit_hash"] = commitHash
	}
	if traceID != "" {
		c["trace_id"] = traceID
	}
	return Event{Constructed: c}
}

// DoneEvent is the terminal success event.
func DoneEvent() Event {
	return Event{Constructed: map[string]any{"type": "done", "exit_code": 0}}
}
