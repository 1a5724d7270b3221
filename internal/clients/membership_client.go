// internal/clients/membership_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"lendhub/internal/membership"
)

func (c *Client) Register(ctx context.Context, name, email string, role membership.Role) (*membership.Member, error) {
	req := struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}{name, email, string(role)}

	var member membership.Member
	if err := c.do(ctx, http.MethodPost, "/members", req, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) GetMember(ctx context.Context, id uuid.UUID) (*membership.Member, error) {
	var member membership.Member
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/members/%s", id), nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) ListMembers(ctx context.Context, role membership.Role) ([]*membership.Member, error) {
	var members []*membership.Member
	path := "/members?role=" + url.QueryEscape(string(role))
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}
