package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

// Client talks to the chat backend REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient builds a Client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse api url: %q is not absolute", baseURL)
	}
	c := &Client{baseURL: u, http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListChatrooms fetches all chatrooms.
func (c *Client) ListChatrooms(ctx context.Context) ([]models.ChatroomDTO, error) {
	var out []models.ChatroomDTO
	err := c.do(ctx, http.MethodGet, "/chatrooms", "/chatrooms", nil, &out)
	return out, err
}

// CreateChatroom creates a chatroom with the given name.
func (c *Client) CreateChatroom(ctx context.Context, name string) (models.ChatroomDTO, error) {
	var out models.ChatroomDTO
	err := c.do(ctx, http.MethodPost, "/chatrooms", "/chatrooms", models.NewCreateChatroomRequest(name), &out)
	return out, err
}

// ListMessages fetches the ordered history of a chatroom.
func (c *Client) ListMessages(ctx context.Context, chatroomID int) ([]models.MessageDTO, error) {
	var out []models.MessageDTO
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chatrooms/%d/messages", chatroomID), "/chatrooms/:id/messages", nil, &out)
	return out, err
}

// CreateMessage posts a message and returns the stored copy.
func (c *Client) CreateMessage(ctx context.Context, chatroomID int, in models.SendInput) (models.MessageDTO, error) {
	var out models.MessageDTO
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/chatrooms/%d/messages", chatroomID), "/chatrooms/:id/messages", models.NewCreateMessageRequest(in), &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path, route string, body, out interface{}) (err error) {
	ctx, span := otel.Tracer("chat-client/api").Start(ctx, method+" "+route)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL.ResolveReference(&url.URL{Path: strings.TrimSuffix(c.baseURL.Path, "/") + path})
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveAPIRequest(method, route, 0, started)
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()
	observability.ObserveAPIRequest(method, route, resp.StatusCode, started)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	isJSON := hasJSONBody(resp) && len(bytes.TrimSpace(raw)) > 0

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload *ErrorPayload
		if isJSON {
			var p ErrorPayload
			if json.Unmarshal(raw, &p) == nil {
				payload = &p
			}
		}
		return newHTTPError(resp.StatusCode, statusText(resp), payload)
	}

	if out == nil || !isJSON {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func hasJSONBody(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && strings.Contains(mediaType, "json")
}
