// internal/clients/client.go
package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"lendhub/internal/web"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a non-2xx response from the lendhub API.
type APIError struct {
	Status  int
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lendhub api: %d %s: %s", e.Status, e.Kind, e.Message)
}

// Client calls the lendhub HTTP API on behalf of one member.
type Client struct {
	baseURL string
	caller  uuid.UUID
	http    *http.Client
}

func NewClient(baseURL string, caller uuid.UUID) *Client {
	return &Client{
		baseURL: baseURL,
		caller:  caller,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// As returns a client sharing the connection pool but acting as caller.
func (c *Client) As(caller uuid.UUID) *Client {
	return &Client{baseURL: c.baseURL, caller: caller, http: c.http}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.caller != uuid.Nil {
		req.Header.Set(web.CallerHeader, c.caller.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
