package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client talks to a running supportbot server.
type Client struct {
	// BaseURL is the server root, e.g. "http://127.0.0.1:3000".
	BaseURL string

	// HTTPClient is used for requests. Defaults to a client without a
	// timeout, since answers stream for as long as the server allows.
	HTTPClient *http.Client
}

// StatusError is returned when the server answers with a non-200 status
// before streaming.
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("client: server returned %d: %s", e.StatusCode, e.Message)
}

// chatRequest is the JSON body of POST /api/chat.
type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId,omitempty"`
}

// Chat sends message on threadID (empty starts a new thread) and consumes
// the streamed answer, calling onUpdate with the full text after every frame.
func (c *Client) Chat(ctx context.Context, message, threadID string, onUpdate func(text string)) (*Exchange, error) {
	body, err := json.Marshal(chatRequest{Message: message, ThreadID: threadID})
	if err != nil {
		return nil, fmt.Errorf("client: encode request: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	return Consume(ctx, resp.Body, onUpdate)
}

// statusError decodes {"error": ...} from a failed response, falling back
// to the raw body.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
