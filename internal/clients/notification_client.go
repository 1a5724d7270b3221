// internal/clients/notification_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"lendhub/internal/notification"
	"lendhub/internal/scanner"
	"lendhub/internal/watchlist"
)

func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]*notification.Notification, error) {
	path := "/notifications"
	if unreadOnly {
		path += "?unread=true"
	}
	var out []*notification.Notification
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Unread int `json:"unread"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Unread, nil
}

func (c *Client) MarkRead(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/notifications/%s/read", id), nil, nil)
}

func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Marked int `json:"marked"`
	}
	if err := c.do(ctx, http.MethodPost, "/notifications/read-all", nil, &out); err != nil {
		return 0, err
	}
	return out.Marked, nil
}

func (c *Client) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/notifications/%s", id), nil, nil)
}

func (c *Client) Watch(ctx context.Context, itemID uuid.UUID) (*watchlist.Entry, error) {
	req := struct {
		ItemID uuid.UUID `json:"item_id"`
	}{itemID}

	var entry watchlist.Entry
	if err := c.do(ctx, http.MethodPost, "/watchlist", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) Watchlist(ctx context.Context) ([]*watchlist.Entry, error) {
	var out []*watchlist.Entry
	if err := c.do(ctx, http.MethodGet, "/watchlist", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Unwatch(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var out struct {
		Removed bool `json:"removed"`
	}
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/watchlist/%s", itemID), nil, &out); err != nil {
		return false, err
	}
	return out.Removed, nil
}

// Scan triggers one due-date scan on the server.
func (c *Client) Scan(ctx context.Context) (*scanner.Report, error) {
	var report scanner.Report
	if err := c.do(ctx, http.MethodPost, "/scan", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
