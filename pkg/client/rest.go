package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SendRequest performs a REST API request under /api/v4 and returns the raw
// response body. Status codes >= 400 are returned as *APIError; the caller
// decides what is fatal. Implements pagination.RestClient.
func (c *Client) SendRequest(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	u, err := url.Parse(c.config.BaseURL + "/api/v4/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("build request URL for %s: %w", path, err)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return body, nil
}
