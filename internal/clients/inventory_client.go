// internal/clients/inventory_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"lendhub/internal/inventory"
)

func (c *Client) AddItem(ctx context.Context, isbn, title, author string, totalCopies int) (*inventory.Item, error) {
	req := struct {
		ISBN        string `json:"isbn"`
		Title       string `json:"title"`
		Author      string `json:"author"`
		TotalCopies int    `json:"total_copies"`
	}{isbn, title, author, totalCopies}

	var item inventory.Item
	if err := c.do(ctx, http.MethodPost, "/items", req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) GetItem(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	var item inventory.Item
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/items/%s", id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) ListItems(ctx context.Context) ([]*inventory.Item, error) {
	var items []*inventory.Item
	if err := c.do(ctx, http.MethodGet, "/items", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*inventory.Item, error) {
	req := struct {
		TotalCopies int `json:"total_copies"`
	}{total}

	var item inventory.Item
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/items/%s/copies", id), req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) RemoveItem(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/items/%s", id), nil, nil)
}
