// Package client consumes the chat event stream served by POST /api/chat.
// Each data frame carries the full answer so far, so the consumer replaces
// its text on every frame instead of appending.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/supportbot-go/internal/logging"
)

// ErrTruncated is returned when the stream ends without a done or error
// event. The partial text is still available on the Exchange.
var ErrTruncated = errors.New("client: stream ended without completion marker")

// maxFrameBytes bounds one SSE line. Frames repeat the whole answer, so the
// bufio default of 64 KiB is too small for long answers.
const maxFrameBytes = 4 << 20

// StreamError is the error the server reported in-band after streaming began.
type StreamError struct {
	Message string
}

// Error implements error.
func (e *StreamError) Error() string {
	return "client: server stream error: " + e.Message
}

// Exchange is the client-side view of one question and its answer.
type Exchange struct {
	// ThreadID is the conversation id echoed by the server.
	ThreadID string
	// Text is the latest full answer text.
	Text string
	// InProgress is true while frames are still being read.
	InProgress bool
	// Completed is true once the done event arrived.
	Completed bool
	// Err is the terminal error, if any.
	Err error
}

// event is the union of the payloads the server sends.
type event struct {
	Message struct {
		Content struct {
			Parts []string `json:"parts"`
		} `json:"content"`
	} `json:"message"`
	ThreadID string `json:"threadId"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Consume reads an SSE body from r until EOF, calling onUpdate with the full
// text after every frame that carries one. Malformed frames are logged and
// skipped. On return InProgress is false; the error is ErrTruncated when no
// terminal event arrived, a *StreamError when the server reported one, or
// the read or context error.
func Consume(ctx context.Context, r io.Reader, onUpdate func(text string)) (*Exchange, error) {
	log := logging.FromContext(ctx)
	if onUpdate == nil {
		onUpdate = func(string) {}
	}

	ex := &Exchange{InProgress: true}
	finish := func(err error) (*Exchange, error) {
		ex.InProgress = false
		ex.Err = err
		return ex, err
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	var eventName string
	var streamErr *StreamError
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		line := sc.Text()
		switch {
		case line == "":
			eventName = ""
			continue
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case !strings.HasPrefix(line, "data:"):
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var ev event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			log.Warn("client: skipping malformed frame",
				slog.String("frame", truncate(payload, 120)),
				slog.Any("error", err),
			)
			continue
		}

		if eventName == "error" || (ev.Error != "" && len(ev.Message.Content.Parts) == 0) {
			streamErr = &StreamError{Message: ev.Error}
			continue
		}

		if ev.ThreadID != "" {
			ex.ThreadID = ev.ThreadID
		}
		if len(ev.Message.Content.Parts) > 0 {
			ex.Text = ev.Message.Content.Parts[0]
			onUpdate(ex.Text)
		}
		if eventName == "done" || ev.Done {
			ex.Completed = true
		}
	}

	if err := sc.Err(); err != nil {
		return finish(fmt.Errorf("client: read stream: %w", err))
	}
	if streamErr != nil {
		return finish(streamErr)
	}
	if !ex.Completed {
		return finish(ErrTruncated)
	}
	return finish(nil)
}

// truncate shortens s to at most n bytes for logging, backing off to a
// rune boundary so the result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
