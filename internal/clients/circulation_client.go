// internal/clients/circulation_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"lendhub/internal/circulation"
)

func (c *Client) CreateRequest(ctx context.Context, itemID uuid.UUID) (*circulation.Request, error) {
	req := struct {
		ItemID uuid.UUID `json:"item_id"`
	}{itemID}

	var out circulation.Request
	if err := c.do(ctx, http.MethodPost, "/requests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approve lends a copy. A nil dueAt leaves the due date to the server.
func (c *Client) Approve(ctx context.Context, requestID uuid.UUID, dueAt *time.Time) (*circulation.Request, error) {
	var body any
	if dueAt != nil {
		body = struct {
			DueAt time.Time `json:"due_at"`
		}{*dueAt}
	}

	var out circulation.Request
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/requests/%s/approve", requestID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reject(ctx context.Context, requestID uuid.UUID) (*circulation.Request, error) {
	var out circulation.Request
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/requests/%s/reject", requestID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReturnItem(ctx context.Context, requestID uuid.UUID) (*circulation.ReturnResult, error) {
	var out circulation.ReturnResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/requests/%s/return", requestID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetRequest(ctx context.Context, requestID uuid.UUID) (*circulation.Request, error) {
	var out circulation.Request
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/requests/%s", requestID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRequests(ctx context.Context, status circulation.Status) ([]*circulation.Request, error) {
	var out []*circulation.Request
	path := "/requests?status=" + url.QueryEscape(string(status))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MyRequests(ctx context.Context) ([]*circulation.Request, error) {
	var out []*circulation.Request
	if err := c.do(ctx, http.MethodGet, "/requests/mine", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
