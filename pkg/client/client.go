// Package client is a Go client for the notesync HTTP API.
//
// [Client] implements the two sync calls, pull and push, plus the poke
// subscription that tells a client when to pull. It keeps no sync state of
// its own; see [github.com/notesync/notesync/pkg/notesynctesting.Replica] for
// a client that does.
//
// Basic usage:
//
//	c := client.NewClient("http://localhost:8080")
//	c.SetAuthToken(token)
//
//	pokes, err := c.SubscribePokes(ctx)
//	if err != nil {
//		return err
//	}
//	for range pokes {
//		resp, err := c.Pull(ctx, &engine.PullRequest{ClientGroupID: group, Cookie: cookie})
//		...
//	}
//
// Errors returned for non-2xx responses are *[APIError]. They match the
// engine's kind sentinels, so errors.Is(err, engine.ErrStorage) reports a
// retryable failure.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/notesync/notesync/pkg/engine"
	"github.com/notesync/notesync/pkg/models"
)

// Client is safe for concurrent use once configured.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	userID     models.UserID
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080", with no trailing slash.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetAuthToken sets the bearer token sent with every request.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

// SetUserID identifies the user with the X-User-ID header. Servers only
// honour it when token authentication is disabled.
func (c *Client) SetUserID(userID models.UserID) {
	c.userID = userID
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Kind       engine.ErrorKind
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("API error: status=%d, kind=%s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("API error: status=%d: %s", e.StatusCode, e.Message)
}

// Is matches the engine's kind sentinels.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*engine.Error)
	return ok && e.Kind != "" && t.Kind == e.Kind
}

func (c *Client) setHeaders(h http.Header) {
	if c.authToken != "" {
		h.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.userID != "" {
		h.Set("X-User-ID", string(c.userID))
	}
}

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req.Header)

	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response into target, or the error body
// into an *APIError.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		var payload struct {
			Error string           `json:"error"`
			Kind  engine.ErrorKind `json:"kind"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Kind = payload.Kind
		}
		return apiErr
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health checks the health status of the server
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// Pull fetches the patch since req.Cookie. Put values in the patch are
// json.RawMessage.
func (c *Client) Pull(ctx context.Context, req *engine.PullRequest) (*engine.PullResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/pull", req)
	if err != nil {
		return nil, err
	}

	var result engine.PullResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Push sends a batch of mutations.
func (c *Client) Push(ctx context.Context, req *engine.PushRequest) (*engine.PushResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/push", req)
	if err != nil {
		return nil, err
	}

	var result engine.PushResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubscribePokes opens the poke websocket. The returned channel receives a
// value for every poke and is closed when ctx ends or the connection drops.
// Pokes the caller has not consumed yet are coalesced.
func (c *Client) SubscribePokes(ctx context.Context) (<-chan struct{}, error) {
	u, err := url.Parse(c.baseURL + "/api/poke")
	if err != nil {
		return nil, fmt.Errorf("invalid poke url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	header := http.Header{}
	c.setHeaders(header)
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to pokes: %w", err)
	}

	pokes := make(chan struct{}, 1)
	go func() {
		defer close(pokes)
		defer conn.CloseNow()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageText || string(msg) != "poke" {
				continue
			}
			select {
			case pokes <- struct{}{}:
			default:
			}
		}
	}()
	return pokes, nil
}
