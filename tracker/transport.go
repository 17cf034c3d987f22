package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/thebuddyman/v0-notion-usability-testing/models"
)

// Transport delivers session actions to the dispatcher.
//
// Send is an ordinary awaited call. BestEffortSend is the page-unload
// path: it must not block, may not confirm delivery, and reports only
// whether the payload was queued. Callers that get false fall back to
// Send with a capped time budget.
type Transport interface {
	Send(ctx context.Context, req models.SessionActionRequest) (*models.SessionActionResponse, error)
	BestEffortSend(req models.SessionActionRequest) bool
}

// HTTPTransport talks to POST /api/session-action.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *HTTPTransport) endpoint() string {
	return t.BaseURL + "/api/session-action"
}

func (t *HTTPTransport) Send(ctx context.Context, req models.SessionActionRequest) (*models.SessionActionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session action: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build session action request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("session action %q failed: %w", req.Action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read session action response: %w", err)
	}

	var out models.SessionActionResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("failed to decode session action response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("session action %q failed: %s", req.Action, msg)
	}

	return &out, nil
}

// BestEffortSend queues the payload on a detached goroutine and returns
// immediately. The body goes out without a JSON content type, matching
// what a beacon sender is allowed to do; the dispatcher parses raw
// bodies for exactly this reason.
func (t *HTTPTransport) BestEffortSend(req models.SessionActionRequest) bool {
	payload, err := json.Marshal(req)
	if err != nil {
		log.Printf("tracker: failed to encode best-effort payload: %v", err)
		return false
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), bytes.NewReader(payload))
		if err != nil {
			return
		}
		resp, err := t.Client.Do(httpReq)
		if err != nil {
			log.Printf("tracker: best-effort %q delivery failed: %v", req.Action, err)
			return
		}
		resp.Body.Close()
	}()
	return true
}
