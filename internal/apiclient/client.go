// Package apiclient calls the chat REST API on behalf of a signed-in user.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"activamigos-chat/internal/models"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// TokenSource yields the bearer token for the next request.
type TokenSource func() string

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// New builds a client rooted at baseURL.
func New(baseURL string, timeout time.Duration, token TokenSource) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
	}
}

func roomQuery(room models.RoomRef) url.Values {
	v := url.Values{}
	v.Set("context_type", string(room.ContextType))
	v.Set("context_id", strconv.FormatInt(room.ContextID, 10))
	return v
}

// History fetches one page of room history, ordered ascending by id.
func (c *Client) History(ctx context.Context, room models.RoomRef, q models.HistoryQuery) (models.HistoryPage, error) {
	v := roomQuery(room)
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.BeforeID > 0 {
		v.Set("before_id", strconv.FormatInt(q.BeforeID, 10))
	}

	var page models.HistoryPage
	err := c.do(ctx, http.MethodGet, "/api/chat/history?"+v.Encode(), nil, &page)
	return page, err
}

// PostMessage sends through the REST fallback.
func (c *Client) PostMessage(ctx context.Context, room models.RoomRef, content string) (models.ChatMessage, error) {
	body := map[string]any{"context_type": room.ContextType, "context_id": room.ContextID, "content": content}
	var msg models.ChatMessage
	err := c.do(ctx, http.MethodPost, "/api/chat/messages", body, &msg)
	return msg, err
}

// ModerationStatus fetches a snapshot for userID in room. It does not retry.
func (c *Client) ModerationStatus(ctx context.Context, room models.RoomRef, userID int64) (models.ModerationStatus, error) {
	v := roomQuery(room)
	if userID > 0 {
		v.Set("user_id", strconv.FormatInt(userID, 10))
	}
	var status models.ModerationStatus
	err := c.do(ctx, http.MethodGet, "/api/moderation/status?"+v.Encode(), nil, &status)
	return status, err
}

// IssueWarning creates a warning. It is not idempotent.
func (c *Client) IssueWarning(ctx context.Context, req models.IssueWarningRequest) (models.IssueWarningResult, error) {
	var res models.IssueWarningResult
	err := c.do(ctx, http.MethodPost, "/api/moderation/warnings", req, &res)
	return res, err
}

// Warnings lists the warnings issued in room.
func (c *Client) Warnings(ctx context.Context, room models.RoomRef) ([]models.Warning, error) {
	var out struct {
		Warnings []models.Warning `json:"warnings"`
	}
	err := c.do(ctx, http.MethodGet, "/api/moderation/warnings?"+roomQuery(room).Encode(), nil, &out)
	return out.Warnings, err
}

// Unban lifts a ban. The warning count is kept.
func (c *Client) Unban(ctx context.Context, membershipID int64) (models.Membership, error) {
	var out struct {
		Membership models.Membership `json:"membership"`
	}
	err := c.do(ctx, http.MethodPatch, "/api/moderation/memberships/"+strconv.FormatInt(membershipID, 10)+"/unban", nil, &out)
	return out.Membership, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
