package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// errStreamBroken is returned for writes after the connection failed.
var errStreamBroken = errors.New("server: sse stream broken")

// sseStream writes chat frames as Server-Sent Events. Response headers are
// sent lazily with the first frame.
type sseStream struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each frame.
	flusher http.Flusher

	// threadID is echoed in every frame.
	threadID string

	// started is true once the headers and the first frame were written.
	started bool

	// broken is set after a failed write. No further writes are attempted.
	broken bool
}

// emit sends one snapshot frame. It satisfies agent.Emitter.
func (s *sseStream) emit(snapshot string) error {
	return s.write("", chatEvent{
		Message:  chatMessage{Content: chatContent{Parts: []string{snapshot}}},
		ThreadID: s.threadID,
	})
}

// done sends the terminal event repeating the full answer.
func (s *sseStream) done(text string) error {
	return s.write("done", chatEvent{
		Message:  chatMessage{Content: chatContent{Parts: []string{text}}},
		ThreadID: s.threadID,
		Done:     true,
	})
}

// fail sends the terminal error event.
func (s *sseStream) fail(msg string) error {
	return s.write("error", errorResponse{Error: msg})
}

// write encodes payload as a single data line, optionally preceded by an
// event line, and flushes it.
func (s *sseStream) write(event string, payload any) error {
	if s.broken {
		return errStreamBroken
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("server: encode sse frame: %w", err)
	}

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	var buf bytes.Buffer
	if event != "" {
		buf.WriteString("event: ")
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")

	if _, err := s.w.Write(buf.Bytes()); err != nil {
		s.broken = true
		return fmt.Errorf("server: write sse frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
