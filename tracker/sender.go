package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SessionHeader carries the session id next to the session_id body field.
const SessionHeader = "X-Session-Id"

// IngestPath is the ingest endpoint relative to the server base URL.
const IngestPath = "/api/metrics/visit"

// HTTPSender posts visits to an ingest endpoint.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender returns a sender for the server at baseURL. A nil client
// uses one with a 10 second timeout.
func NewHTTPSender(baseURL string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{
		endpoint: strings.TrimRight(baseURL, "/") + IngestPath,
		client:   client,
	}
}

type ackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Send posts p and succeeds only on a 2xx response with {"ok": true}.
func (s *HTTPSender) Send(ctx context.Context, p Payload, sessionID string) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode visit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build visit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send visit: %w", err)
	}
	defer resp.Body.Close()

	var ack ackResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ack); err != nil && resp.StatusCode < 300 {
		return fmt.Errorf("decode ack: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ingest returned %d %s", resp.StatusCode, ack.Error)
	}
	if !ack.OK {
		return fmt.Errorf("ingest rejected visit: %s", ack.Error)
	}
	return nil
}
